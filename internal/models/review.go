package models

import (
	"time"

	"github.com/google/uuid"
)

type Review struct {
	ID          uuid.UUID
	WorkOrderID uuid.UUID
	AuthorID    uuid.UUID // hiring party
	SubjectID   uuid.UUID // contractor
	Rating      int
	Comment     string
	CreatedAt   time.Time
}
