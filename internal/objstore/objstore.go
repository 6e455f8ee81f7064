// Copyright (c) 2026 Lettervault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package objstore writes newsletter content to object storage. Production
// uses a GCS bucket; development writes to a local directory. Shared
// content is keyed by its fingerprint (content-addressed, so re-uploads of
// identical content are harmless overwrites); private content gets a
// per-user random key so object names leak nothing across users.
package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// Store persists newsletter content blobs.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// SharedKey is the content-addressed key for shared/public content.
func SharedKey(fingerprint string) string {
	return "newsletters/shared/" + fingerprint + ".html"
}

// PrivateKey is a fresh random per-user key for private content.
func PrivateKey(userID string) string {
	return "newsletters/" + userID + "/" + uuid.New().String() + ".html"
}

// GCS stores blobs in a Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket string
}

// NewGCS creates a GCS-backed store.
func NewGCS(client *gcs.Client, bucket string) *GCS {
	return &GCS{client: client, bucket: bucket}
}

func (s *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer %s: %w", key, err)
	}
	return nil
}

// Local stores blobs under a directory, for development.
type Local struct {
	root string
}

// NewLocal creates a filesystem-backed store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

func (s *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	// Keys use "/" separators; keep them inside the root.
	clean := filepath.Clean(strings.ReplaceAll(key, "/", string(filepath.Separator)))
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("object key escapes storage root: %s", key)
	}

	path := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}
