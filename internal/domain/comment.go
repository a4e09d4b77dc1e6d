package domain

import "time"

// Comment is an append-only note on a ticket. Its ID is the submission key shared
// with the files uploaded alongside it.
type Comment struct {
	ID           string
	TicketID     string
	AuthorID     string
	Content      string
	IsInternal   bool
	ShowToClient bool
	StatusAtTime TicketStatus
	CreatedAt    time.Time
}

// FileAttachment stores metadata for an uploaded blob.
type FileAttachment struct {
	ID                   string
	TicketID             string
	CommentID            *string
	UploaderID           string
	StoragePath          string
	OriginalName         string
	ContentType          string
	SizeBytes            int64
	ForInitialAttachment bool
	UploadedAt           time.Time
}
