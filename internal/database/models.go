package database

import (
	"fmt"
	"time"
)

type Upload struct {
	ID        string    `json:"fileId"`
	Title     string    `json:"title"`
	Filename  string    `json:"filename"`
	Content   string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *Upload) Print() string {
	return fmt.Sprintf("File_id: %s - Title: %s", u.ID, u.Title)
}

type UploadChunk struct {
	Index     int
	Content   string
	Embedding []float32
}
