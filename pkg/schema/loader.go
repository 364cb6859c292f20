package schema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

// Parse decodes a single dataset document. Documents are YAML; JSON parses
// as well since YAML is a superset.
func Parse(doc []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(doc, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset document: %w", err)
	}
	if ds.ID == "" {
		return nil, fmt.Errorf("dataset document without id")
	}
	return &ds, nil
}

// LoadDir reads every dataset document in dir (non-recursive) and resolves
// them into a Set.
func LoadDir(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var datasets []*Dataset
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		doc, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		ds, err := Parse(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		datasets = append(datasets, ds)
	}
	if len(datasets) == 0 {
		return nil, fmt.Errorf("no dataset documents in %s", dir)
	}
	return NewSet(datasets...)
}

// Fetch retrieves dataset documents from the given URLs and resolves them
// into a Set. Transient fetch errors are retried with exponential backoff
// until the context is done.
func Fetch(ctx context.Context, client *http.Client, urls ...string) (*Set, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var datasets []*Dataset
	for _, url := range urls {
		var doc []byte
		op := func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
			}
			if resp.StatusCode != http.StatusOK {
				return backoff.Permanent(fmt.Errorf("fetch %s: status %d", url, resp.StatusCode))
			}
			doc, err = io.ReadAll(resp.Body)
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
			return nil, err
		}
		ds, err := Parse(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", url, err)
		}
		datasets = append(datasets, ds)
	}
	return NewSet(datasets...)
}
