package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"apkd/internal/models"
)

const boltOpenTimeout = 2 * time.Second

var (
	boltBucketName = []byte("releases")
	boltCurrentKey = []byte("current")
)

// BoltStore keeps the record as one JSON value in a Bolt bucket.
type BoltStore struct {
	db *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// OpenBolt opens (or creates) the Bolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltBucketName); err != nil {
			return fmt.Errorf("could not ensure bucket %q exists: %w", boltBucketName, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// Read loads the record, creating the default one inside the same
// read-write transaction when the key is absent.
func (s *BoltStore) Read(ctx context.Context) (models.Release, error) {
	if err := ctx.Err(); err != nil {
		return models.Release{}, err
	}
	var release models.Release
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucketName)
		value := bucket.Get(boltCurrentKey)
		if value == nil {
			release = models.DefaultRelease()
			return putRelease(bucket, release)
		}
		if err := json.Unmarshal(value, &release); err != nil {
			return fmt.Errorf("decode release: %w", err)
		}
		return nil
	})
	return release, err
}

func (s *BoltStore) Write(ctx context.Context, release models.Release) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := release.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRelease(tx.Bucket(boltBucketName), release)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putRelease(bucket *bolt.Bucket, release models.Release) error {
	data, err := json.Marshal(release)
	if err != nil {
		return err
	}
	if err := bucket.Put(boltCurrentKey, data); err != nil {
		return fmt.Errorf("could not put release: %w", err)
	}
	return nil
}
