package analysis

import "github.com/ademuri/scrobble-server/internal/store"

// Medals lists the past years in which an entity finished first, second or
// third in the yearly charts.
type Medals struct {
	Gold   []int `json:"gold"`
	Silver []int `json:"silver"`
	Bronze []int `json:"bronze"`
}

type ArtistInfo struct {
	Artist     string   `json:"artist"`
	ID         int64    `json:"id"`
	Scrobbles  int      `json:"scrobbles"`
	Position   *int     `json:"position"`
	Associated []string `json:"associated"`
	Medals     Medals   `json:"medals"`
	TopWeeks   int      `json:"topweeks"`
}

type TrackInfo struct {
	Track         store.Track `json:"track"`
	Scrobbles     int         `json:"scrobbles"`
	Position      *int        `json:"position"`
	Medals        Medals      `json:"medals"`
	Certification string      `json:"certification"`
	TopWeeks      int         `json:"topweeks"`
}
