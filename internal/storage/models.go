package storage

import "time"

// ChatSession is one conversation between a user and an assistant target.
// Course sessions additionally carry the course id and cached remote handles
// for the provider-side assistant and thread.
type ChatSession struct {
	ID                string
	UserID            string
	Target            string
	CourseID          *string
	CourseName        *string
	AssistantRemoteID *string
	ThreadRemoteID    *string
	MessageCount      int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Message struct {
	ID        string
	SessionID string
	Seq       int
	Role      string
	Content   string
	Source    string
	CreatedAt time.Time
}
