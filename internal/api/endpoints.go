package api

import (
	"net/http"

	"github.com/ademuri/scrobble-server/internal/query"
)

// BasePath is the prefix of every endpoint in the table.
const BasePath = "/apis/mlj_1"

// Auth is the access level an endpoint requires.
type Auth int

const (
	Public Auth = iota
	// APIKey accepts a client API key or the admin password.
	APIKey
	Admin
)

func (a Auth) String() string {
	switch a {
	case APIKey:
		return "api key"
	case Admin:
		return "admin"
	default:
		return "public"
	}
}

type handlerFunc func(s *Server, r *request) (any, error)

type Endpoint struct {
	Method  string
	Path    string
	Caps    query.Capabilities
	Auth    Auth
	Summary string

	handle handlerFunc
}

// Groups names the shared parameter groups the endpoint accepts.
func (e Endpoint) Groups() []string {
	var g []string
	if e.Caps.NeedsFilter || e.Caps.ForceArtist || e.Caps.ForceTrack || e.Caps.RequireEntity {
		g = append(g, "filter")
	}
	if e.Caps.NeedsTimeRange {
		g = append(g, "limit")
	}
	if e.Caps.NeedsAggregation {
		g = append(g, "delimit")
	}
	if e.Caps.NeedsPagination {
		g = append(g, "amount")
	}
	return g
}

var (
	filterTimeAmount = query.Capabilities{NeedsFilter: true, NeedsTimeRange: true, NeedsPagination: true}
	series           = query.Capabilities{NeedsTimeRange: true, NeedsAggregation: true}
)

// Endpoints is the complete API, in documentation order.
var Endpoints = []Endpoint{
	{http.MethodGet, "test", query.Capabilities{}, Public, "Checks an API key, or just pings the server", (*Server).test},
	{http.MethodGet, "serverinfo", query.Capabilities{}, Public, "Server name, version and database status", (*Server).serverInfo},
	{http.MethodGet, "scrobbles", filterTimeAmount, Public, "Lists scrobbles, newest first", (*Server).scrobbles},
	{http.MethodGet, "numscrobbles", query.Capabilities{NeedsFilter: true, NeedsTimeRange: true}, Public, "Counts scrobbles", (*Server).numScrobbles},
	{http.MethodGet, "tracks", query.Capabilities{ForceArtist: true}, Public, "Lists tracks, optionally of one artist", (*Server).tracks},
	{http.MethodGet, "artists", query.Capabilities{}, Public, "Lists artists", (*Server).artists},
	{http.MethodGet, "charts/artists", query.Capabilities{NeedsTimeRange: true}, Public, "Artist chart", (*Server).chartsArtists},
	{http.MethodGet, "charts/tracks", query.Capabilities{ForceArtist: true, NeedsTimeRange: true}, Public, "Track chart, optionally of one artist", (*Server).chartsTracks},
	{http.MethodGet, "pulse", query.Capabilities{NeedsFilter: true, NeedsTimeRange: true, NeedsAggregation: true, NeedsPagination: true}, Public, "Scrobble counts per step", (*Server).pulse},
	{http.MethodGet, "performance", query.Capabilities{NeedsFilter: true, RequireEntity: true, NeedsTimeRange: true, NeedsAggregation: true, NeedsPagination: true}, Public, "Chart rank per step", (*Server).performance},
	{http.MethodGet, "top/artists", series, Public, "Number one artist per step", (*Server).topArtists},
	{http.MethodGet, "top/tracks", series, Public, "Number one track per step", (*Server).topTracks},
	{http.MethodGet, "artistinfo", query.Capabilities{ForceArtist: true, RequireEntity: true}, Public, "Statistics of one artist", (*Server).artistInfo},
	{http.MethodGet, "trackinfo", query.Capabilities{ForceTrack: true}, Public, "Statistics of one track", (*Server).trackInfo},
	{http.MethodPost, "newscrobble", query.Capabilities{}, APIKey, "Submits a scrobble", (*Server).newScrobble},
	{http.MethodGet, "search", query.Capabilities{}, Public, "Searches artists and tracks", (*Server).search},
	{http.MethodPost, "addpicture", query.Capabilities{NeedsFilter: true}, APIKey, "Uploads an artist or track image", (*Server).addPicture},
	{http.MethodPost, "importrules", query.Capabilities{}, Admin, "Activates or removes a predefined rule set", (*Server).importRules},
	{http.MethodPost, "rebuild", query.Capabilities{}, Admin, "Reparses every scrobble in the background", (*Server).rebuild},
	{http.MethodPost, "settings", query.Capabilities{}, Admin, "Updates runtime settings", (*Server).updateSettings},
	{http.MethodPost, "apikeys", query.Capabilities{}, Admin, "Sets or removes client API keys", (*Server).updateKeys},
	{http.MethodPost, "import", query.Capabilities{}, Admin, "Imports a last.fm user's history in the background", (*Server).importLastFM},
	{http.MethodGet, "backup", query.Capabilities{}, Admin, "Downloads a zip of the database, rules and settings", (*Server).backup},
	{http.MethodGet, "export", query.Capabilities{}, Admin, "Downloads every scrobble as JSON", (*Server).export},
	{http.MethodPost, "delete_scrobble", query.Capabilities{}, Admin, "Deletes a scrobble", (*Server).deleteScrobble},
	{http.MethodPost, "edit_artist", query.Capabilities{}, Admin, "Renames an artist", (*Server).editArtist},
	{http.MethodPost, "edit_track", query.Capabilities{}, Admin, "Renames a track", (*Server).editTrack},
	{http.MethodPost, "merge_tracks", query.Capabilities{}, Admin, "Merges tracks into a target", (*Server).mergeTracks},
	{http.MethodPost, "merge_artists", query.Capabilities{}, Admin, "Merges artists into a target", (*Server).mergeArtists},
	{http.MethodPost, "reparse_scrobble", query.Capabilities{}, Admin, "Reparses one scrobble", (*Server).reparseScrobble},
}
