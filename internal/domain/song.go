package domain

// Song is a catalog entry in the song library. Identity is immutable; only
// library management mutates songs. The queue core uses songs as lookup keys
// for request titles.
type Song struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Genre       string `json:"genre,omitempty"`
	Key         string `json:"key,omitempty"`
	Notes       string `json:"notes,omitempty"`
	AlbumArtURL string `json:"album_art_url,omitempty"`
}
