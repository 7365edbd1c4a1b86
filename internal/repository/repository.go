package repository

import (
	"github.com/google/uuid"

	"github.com/NamanBalaji/bitwire/pkg/peer"
)

// Repository persists peer connection records.
type Repository interface {
	peer.PeerStore
	Find(id uuid.UUID) (*PeerRecord, error)
	FindAll() ([]*PeerRecord, error)
	FindByInfoHash(infoHash peer.Hash) ([]*PeerRecord, error)
	Delete(id uuid.UUID) error
	Close() error
}
