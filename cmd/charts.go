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
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ademuri/scrobble-server/internal/query"
	"github.com/ademuri/scrobble-server/internal/store"
	"github.com/ademuri/scrobble-server/internal/timerange"
)

var chartsNumber int
var chartsArtist string
var chartsCmd = &cobra.Command{
	Use:   "charts artists|tracks [from] [to (optional)]",
	Short: "Prints the artist or track chart",
	Long: `Uses the given time expression or range, all time by default. Time
expressions look like 'yyyy', 'yyyy/mm', 'yyyy/mm/dd', 'yyyy/wNN', 'thismonth'
or a month or weekday name.`,
	Args:      cobra.RangeArgs(1, 3),
	ValidArgs: []string{"artists", "tracks"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		out, err := chartsTable(cmd.Context(), db, args[0], args[1:], chartsNumber, chartsArtist)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartsCmd)

	chartsCmd.Flags().IntVarP(&chartsNumber, "number", "n", 10, "number of results to return, 0 for all")
	chartsCmd.Flags().StringVar(&chartsArtist, "artist", "", "only chart tracks of this artist")
}

// parseRangeArgs resolves zero, one or two time expressions.
func parseRangeArgs(args []string, now time.Time) (timerange.Range, error) {
	switch len(args) {
	case 0:
		return timerange.Range{}, nil
	case 1:
		return timerange.ParseToken(args[0], now)
	case 2:
		from, err := timerange.ParseToken(args[0], now)
		if err != nil {
			return timerange.Range{}, err
		}
		to, err := timerange.ParseToken(args[1], now)
		if err != nil {
			return timerange.Range{}, err
		}
		r := timerange.Range{From: from.From, To: to.To}
		if r.From != nil && r.To != nil && !r.From.Before(*r.To) {
			return timerange.Range{}, fmt.Errorf("%q does not start before %q ends", args[0], args[1])
		}
		return r, nil
	default:
		return timerange.Range{}, fmt.Errorf("expected at most two time expressions")
	}
}

func describeRange(r timerange.Range) string {
	const dateFormat = "2006-01-02"
	from, to := "the beginning", "now"
	if r.From != nil {
		from = r.From.Format(dateFormat)
	}
	if r.To != nil {
		to = r.To.Format(dateFormat)
	}
	return fmt.Sprintf("from %s to %s", from, to)
}

func chartsTable(ctx context.Context, db *store.Store, kind string, args []string, numToReturn int, artist string) (Table, error) {
	r, err := parseRangeArgs(args, db.Now())
	if err != nil {
		return Table{}, err
	}

	var t Table
	total := 0
	switch kind {
	case "artists":
		entries, err := db.ChartsArtists(ctx, r)
		if err != nil {
			return Table{}, err
		}
		t.rows = [][]string{{"#", "Artist", "Scrobbles"}}
		for i, e := range entries {
			total += e.Scrobbles
			if numToReturn == 0 || i < numToReturn {
				t.rows = append(t.rows, []string{strconv.Itoa(e.Rank), e.Artist, humanize.Comma(int64(e.Scrobbles))})
			}
		}
		t.summary = fmt.Sprintf("Found %d artists %s", len(entries), describeRange(r))

	case "tracks":
		var f query.FilterSpec
		if artist != "" {
			f.Artists = []string{artist}
		}
		entries, err := db.ChartsTracks(ctx, f, r)
		if err != nil {
			return Table{}, err
		}
		t.rows = [][]string{{"#", "Artists", "Title", "Scrobbles"}}
		for i, e := range entries {
			total += e.Scrobbles
			if numToReturn == 0 || i < numToReturn {
				t.rows = append(t.rows, []string{strconv.Itoa(e.Rank), strings.Join(e.Track.Artists, ", "), e.Track.Title, humanize.Comma(int64(e.Scrobbles))})
			}
		}
		t.summary = fmt.Sprintf("Found %d tracks %s", len(entries), describeRange(r))

	default:
		return Table{}, fmt.Errorf("unknown chart %q, expected artists or tracks", kind)
	}
	t.summary += fmt.Sprintf(" (%s scrobbles)", humanize.Comma(int64(total)))
	return t, nil
}
