package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/NamanBalaji/bitwire/pkg/peer"
)

const (
	peersBucket    = "peers"
	metadataBucket = "metadata"
	schemaVersion  = 1
)

// ErrPeerNotFound is returned when a record cannot be found
var ErrPeerNotFound = errors.New("peer record not found")

// PeerRecord is a stored connection. Saves counts how many times the
// record was written.
type PeerRecord struct {
	peer.PeerInfo
	Saves     int       `json:"saves"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Open reports whether the connection had not closed when last saved.
func (r *PeerRecord) Open() bool {
	return r.ClosedAt.IsZero()
}

var _ Repository = (*BboltRepository)(nil)

// BboltRepository implements Repository on a bbolt file.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(peersBucket))
		if err != nil {
			return fmt.Errorf("failed to create peers bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		err = meta.Put([]byte("schema_version"), fmt.Appendf(nil, "%d", schemaVersion))
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// SavePeer upserts the record for info.ConnID.
func (r *BboltRepository) SavePeer(info peer.PeerInfo) error {
	if info.ConnID == uuid.Nil {
		return errors.New("peer record needs a connection id")
	}

	key := []byte(info.ConnID.String())

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(peersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", peersBucket)
		}

		rec := PeerRecord{PeerInfo: info}

		if prev := bucket.Get(key); prev != nil {
			var old PeerRecord
			if err := json.Unmarshal(prev, &old); err != nil {
				return fmt.Errorf("failed to unmarshal peer record: %w", err)
			}

			rec.Saves = old.Saves
		}

		rec.Saves++
		rec.UpdatedAt = time.Now()

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal peer record: %w", err)
		}

		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to save peer record: %w", err)
		}

		return nil
	})
}

// Find retrieves a record by connection id
func (r *BboltRepository) Find(id uuid.UUID) (*PeerRecord, error) {
	if id == uuid.Nil {
		return nil, errors.New("connection ID cannot be empty")
	}

	var rec PeerRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(peersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", peersBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return ErrPeerNotFound
		}

		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal peer record: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// FindAll returns every record, oldest connection first.
func (r *BboltRepository) FindAll() ([]*PeerRecord, error) {
	return r.filter(func(*PeerRecord) bool { return true })
}

// FindByInfoHash returns the records for one torrent, oldest first.
func (r *BboltRepository) FindByInfoHash(infoHash peer.Hash) ([]*PeerRecord, error) {
	return r.filter(func(rec *PeerRecord) bool { return rec.InfoHash == infoHash })
}

func (r *BboltRepository) filter(keep func(*PeerRecord) bool) ([]*PeerRecord, error) {
	var records []*PeerRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(peersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", peersBucket)
		}

		return bucket.ForEach(func(_, v []byte) error {
			rec := &PeerRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("failed to unmarshal peer record: %w", err)
			}

			if keep(rec) {
				records = append(records, rec)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ConnectedAt.Before(records[j].ConnectedAt)
	})

	return records, nil
}

// Delete removes a record
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("connection ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(peersBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", peersBucket)
		}

		if bucket.Get([]byte(id.String())) == nil {
			return ErrPeerNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
