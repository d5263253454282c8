package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type feedRow struct {
	ID       int64  `gorm:"primarykey"`
	Oracle   string `gorm:"index:idx_feed"`
	FeedName string `gorm:"index:idx_feed"`
	Value    string
	MCI      int64 `gorm:"column:mci;index"`
	Seq      int64
	Unit     string
}

func (feedRow) TableName() string {
	return "data_feed"
}

type attestationRow struct {
	ID       int64  `gorm:"primarykey"`
	Attestor string `gorm:"index:idx_attested"`
	Address  string `gorm:"index:idx_attested"`
	Fields   string // JSON object of field -> value
	MCI      int64  `gorm:"column:mci"`
	Seq      int64
	Unit     string
}

func (attestationRow) TableName() string {
	return "attestation"
}

type assetRow struct {
	ID                  string `gorm:"primarykey"`
	Cap                 float64
	IsPrivate           bool
	IsTransferrable     bool
	AutoDestroy         bool
	FixedDenominations  bool
	IssuedByDefinerOnly bool
	CosignedByDefiner   bool
	SpenderAttested     bool
	IsIssued            bool
	DefinerAddress      string
}

func (assetRow) TableName() string {
	return "asset"
}

type balanceRow struct {
	Address string `gorm:"primarykey"`
	Asset   string `gorm:"primarykey"`
	Amount  int64
}

func (balanceRow) TableName() string {
	return "balance"
}

type aaRow struct {
	Address string `gorm:"primarykey"`
}

func (aaRow) TableName() string {
	return "aa"
}

// SQL is a ledger snapshot stored in a SQLite database.
type SQL struct {
	db *gorm.DB
}

// OpenSQL opens (creating if needed) a SQLite ledger database.
// Use ":memory:" for a throwaway database.
func OpenSQL(path string) (*SQL, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&feedRow{}, &attestationRow{}, &assetRow{}, &balanceRow{}, &aaRow{}); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Import copies a fixture into the database in one transaction.
func (s *SQL) Import(ctx context.Context, f *Fixture) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range f.DataFeeds {
			row := feedRow{Oracle: p.Oracle, FeedName: p.FeedName, Value: p.Value, MCI: p.MCI, Seq: p.Seq, Unit: p.Unit}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, a := range f.Attestations {
			fields, err := json.Marshal(a.Fields)
			if err != nil {
				return err
			}
			row := attestationRow{Attestor: a.Attestor, Address: a.Address, Fields: string(fields), MCI: a.MCI, Seq: a.Seq, Unit: a.Unit}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, a := range f.Assets {
			row := assetRow(a)
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for _, b := range f.Balances {
			row := balanceRow{Address: b.Address, Asset: b.Asset, Amount: b.Amount}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for _, addr := range f.AAs {
			if err := tx.Save(&aaRow{Address: addr}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQL) DataFeeds(ctx context.Context, q FeedQuery) ([]FeedPosting, error) {
	var rows []feedRow
	err := s.db.WithContext(ctx).
		Where("oracle IN ? AND feed_name = ? AND mci >= ? AND mci <= ?", q.Oracles, q.FeedName, q.MinMCI, q.MaxMCI).
		Order("mci DESC, seq DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]FeedPosting, len(rows))
	for i, r := range rows {
		out[i] = FeedPosting{Oracle: r.Oracle, FeedName: r.FeedName, Value: r.Value, MCI: r.MCI, Seq: r.Seq, Unit: r.Unit}
	}
	return out, nil
}

func (s *SQL) Attestations(ctx context.Context, q AttestationQuery) ([]Attestation, error) {
	var rows []attestationRow
	err := s.db.WithContext(ctx).
		Where("attestor IN ? AND address = ? AND mci <= ?", q.Attestors, q.Address, q.MaxMCI).
		Order("mci DESC, seq DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Attestation, len(rows))
	for i, r := range rows {
		var fields map[string]string
		if r.Fields != "" {
			if err := json.Unmarshal([]byte(r.Fields), &fields); err != nil {
				return nil, err
			}
		}
		out[i] = Attestation{Attestor: r.Attestor, Address: r.Address, Fields: fields, MCI: r.MCI, Seq: r.Seq, Unit: r.Unit}
	}
	return out, nil
}

func (s *SQL) Asset(ctx context.Context, id string) (AssetInfo, bool, error) {
	if id == BaseAsset {
		return BaseAssetInfo, true, nil
	}
	var row assetRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AssetInfo{}, false, nil
	}
	if err != nil {
		return AssetInfo{}, false, err
	}
	return AssetInfo(row), true, nil
}

func (s *SQL) Balance(ctx context.Context, address, asset string) (int64, error) {
	var rows []balanceRow
	err := s.db.WithContext(ctx).Where("address = ? AND asset = ?", address, asset).Limit(1).Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return rows[0].Amount, nil
}

func (s *SQL) IsAA(ctx context.Context, address string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&aaRow{}).Where("address = ?", address).Count(&count).Error
	return count > 0, err
}
