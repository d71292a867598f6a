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
	"strings"

	"github.com/spf13/cobra"

	"github.com/ademuri/scrobble-server/internal/api"
)

// docsCmd represents the docs command
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Lists the API endpoints",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printDocs(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
}

func docsTable() Table {
	t := Table{rows: [][]string{{"Method", "Path", "Auth", "Parameters", "Summary"}}}
	for _, ep := range api.Endpoints {
		groups := strings.Join(ep.Groups(), ", ")
		if groups == "" {
			groups = "-"
		}
		t.rows = append(t.rows, []string{ep.Method, api.BasePath + "/" + ep.Path, ep.Auth.String(), groups, ep.Summary})
	}
	t.summary = fmt.Sprintf("%d endpoints", len(api.Endpoints))
	return t
}

func printDocs(out io.Writer) {
	fmt.Fprint(out, docsTable())
}
