// Package store persists analysis reports in an embedded BadgerDB so runs
// can be listed and compared later.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

const (
	reportPrefix = "report:"
	indexPrefix  = "idx:"
)

// ErrReportNotFound is returned by Get when no report has the given ID.
var ErrReportNotFound = errors.New("report not found")

// Summary is the index entry kept for each stored report.
type Summary struct {
	ReportID      string    `json:"report_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	Principals    int       `json:"principals"`
	TotalFindings int       `json:"total_findings"`
	OverallScore  float64   `json:"overall_score"`
}

// ReportStore is a report history backed by BadgerDB.
type ReportStore struct {
	db  *badger.DB
	log logger.Logger
}

// Open opens (creating if needed) the store rooted at dir.
func Open(dir string, log logger.Logger) (*ReportStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.Compression = options.ZSTD
	opts.ValueLogFileSize = 16 << 20
	opts.MemTableSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open report store: %w", err)
	}
	log.Debug("report store opened", logger.String("path", dir))
	return &ReportStore{db: db, log: log}, nil
}

// Save writes rep and its index entry in one transaction. Saving a report
// with an existing ID replaces it.
func (s *ReportStore) Save(rep *models.Report) error {
	if rep == nil || rep.ReportID == "" {
		return fmt.Errorf("save report: missing report ID")
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	sum, err := json.Marshal(summarize(rep))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if old, err := s.get(txn, rep.ReportID); err == nil {
			if err := txn.Delete(indexKey(old.GeneratedAt, old.ReportID)); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrReportNotFound) {
			return err
		}
		if err := txn.Set(reportKey(rep.ReportID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(rep.GeneratedAt, rep.ReportID), sum)
	})
	if err != nil {
		return fmt.Errorf("save report %s: %w", rep.ReportID, err)
	}
	s.log.Debug("report saved", logger.String("report_id", rep.ReportID))
	return nil
}

// Get returns the report stored under id or ErrReportNotFound.
func (s *ReportStore) Get(id string) (*models.Report, error) {
	var rep *models.Report
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rep, err = s.get(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (s *ReportStore) get(txn *badger.Txn, id string) (*models.Report, error) {
	item, err := txn.Get(reportKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var rep models.Report
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rep)
	})
	if err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &rep, nil
}

// Latest returns the most recently generated report or ErrReportNotFound
// when the store is empty.
func (s *ReportStore) Latest() (*models.Report, error) {
	sums, err := s.list(1)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return nil, ErrReportNotFound
	}
	return s.Get(sums[0].ReportID)
}

// List returns report summaries, newest first.
func (s *ReportStore) List() ([]Summary, error) {
	return s.list(0)
}

func (s *ReportStore) list(limit int) ([]Summary, error) {
	var out []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(indexPrefix)
		for it.Seek(append([]byte(indexPrefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var sum Summary
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sum)
			}); err != nil {
				return fmt.Errorf("decode summary %s: %w", it.Item().Key(), err)
			}
			out = append(out, sum)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Delete removes a report and its index entry.
func (s *ReportStore) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rep, err := s.get(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(rep.GeneratedAt, id)); err != nil {
			return err
		}
		return txn.Delete(reportKey(id))
	})
}

// Close releases the underlying database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

func summarize(rep *models.Report) Summary {
	return Summary{
		ReportID:      rep.ReportID,
		GeneratedAt:   rep.GeneratedAt,
		Principals:    len(rep.Principals),
		TotalFindings: rep.Summary.TotalFindings,
		OverallScore:  rep.OverallScore,
	}
}

func reportKey(id string) []byte {
	return []byte(reportPrefix + id)
}

// indexKey sorts lexically by generation time: the zero-padded UnixNano
// keeps byte order equal to time order.
func indexKey(at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", indexPrefix, at.UTC().UnixNano(), id))
}
