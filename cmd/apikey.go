/*
Copyright 2020 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ademuri/scrobble-server/internal/auth"
)

var removeKey bool

// apikeyCmd represents the apikey command
var apikeyCmd = &cobra.Command{
	Use:   "apikey [client]",
	Short: "Manages the API keys clients scrobble with",
	Long: `With a client name, generates a new key for that client and prints it,
replacing any existing key. With --remove, deletes the client's key. Without
arguments, lists the clients that have a key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		keys, err := auth.NewKeyStore(cfg.KeysFile())
		if err != nil {
			return err
		}
		return manageKeys(keys, args, removeKey, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)

	apikeyCmd.Flags().BoolVar(&removeKey, "remove", false, "remove the client's key")
}

func manageKeys(keys *auth.KeyStore, args []string, remove bool, out io.Writer) error {
	if len(args) == 0 {
		if remove {
			return fmt.Errorf("--remove needs a client name")
		}
		for _, c := range keys.Clients() {
			fmt.Fprintln(out, c)
		}
		return nil
	}

	client := args[0]
	if remove {
		if err := keys.Update(map[string]string{client: ""}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed key for %s\n", client)
		return nil
	}

	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	if err := keys.Update(map[string]string{client: key}); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", client, key)
	return nil
}
