package domain

// Board is the read-time projection of every list an owner holds.
// It is never persisted.
type Board struct {
	OwnerID string      `json:"ownerId"`
	Lists   []BoardList `json:"lists"`
}

type BoardList struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Version  int64  `json:"version"`
	Cards    []Card `json:"cards"`
}
