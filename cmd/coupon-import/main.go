// Binary coupon-import loads promo codes from gzipped partner feed files
// into the coupons table.
//
// Feeds are noisy: each partner ships one code per line, and only codes
// present in at least two feeds are trusted. The importer streams every
// feed twice, first to build per-feed bloom filters, then to collect codes
// that another feed's filter also admits. Surviving codes are upserted as
// coupons built from the rule template flags.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/glowmart/coupon-engine/internal/domain/coupon"
	"github.com/glowmart/coupon-engine/internal/storage/postgres"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

type importFlags struct {
	feeds       []string
	databaseURL string

	discountType string
	value        string
	name         string
	description  string
	minimumSpend string
	perUserLimit int
	expiresIn    time.Duration
}

func main() {
	var f importFlags

	flag.StringVar(&f.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&f.discountType, "type", string(coupon.DiscountPercentage), "discount type for imported codes")
	flag.StringVar(&f.value, "value", "10", "discount value (percentage points or amount)")
	flag.StringVar(&f.name, "name", "Partner promo", "coupon display name")
	flag.StringVar(&f.description, "description", "Imported partner promo code", "coupon description")
	flag.StringVar(&f.minimumSpend, "minimum-spend", "0", "minimum cart total required to redeem")
	flag.IntVar(&f.perUserLimit, "per-user-limit", 1, "redemptions allowed per user; 0 means unlimited")
	flag.DurationVar(&f.expiresIn, "expires-in", 90*24*time.Hour, "validity window from now; 0 means no expiry")
	flag.Parse()

	f.feeds = flag.Args()
	if len(f.feeds) < 2 {
		slog.Error("at least two feed files are required")
		os.Exit(1)
	}
	if f.databaseURL == "" {
		f.databaseURL = os.Getenv("DATABASE_URL")
	}
	if f.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, f); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, f importFlags) error {
	for _, feed := range f.feeds {
		if _, err := os.Stat(feed); err != nil {
			return errors.Wrapf(err, "check feed %s", feed)
		}
	}

	template, err := buildTemplate(f)
	if err != nil {
		return errors.Wrap(err, "build rule template")
	}

	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(f.feeds)))
	filters, err := buildFilters(ctx, f.feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: collecting cross-feed codes")
	codes, err := collectCodes(ctx, f.feeds, filters)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}
	slog.Info("trusted codes found", slog.Int("count", len(codes)))

	pool, err := postgres.NewPool(ctx, f.databaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeCoupons(ctx, postgres.NewCouponRepository(postgres.NewDB(pool)), template, codes)
}

// buildTemplate validates the rule flags and returns the coupon all imported
// codes are stamped from.
func buildTemplate(f importFlags) (*coupon.Coupon, error) {
	dt := coupon.DiscountType(f.discountType)
	switch dt {
	case coupon.DiscountPercentage, coupon.DiscountFixedProduct, coupon.DiscountFixedCart:
	default:
		return nil, errors.Errorf("unknown discount type %q", f.discountType)
	}

	value, err := decimal.NewFromString(f.value)
	if err != nil {
		return nil, errors.Wrapf(err, "parse value %q", f.value)
	}
	minSpend, err := decimal.NewFromString(f.minimumSpend)
	if err != nil {
		return nil, errors.Wrapf(err, "parse minimum spend %q", f.minimumSpend)
	}

	c := &coupon.Coupon{
		Name:         f.name,
		DiscountType: dt,
		Discount:     value,
		Description:  f.description,
		Status:       coupon.StatusActive,
		MinimumSpend: minSpend,
		PerUserLimit: f.perUserLimit,
	}
	if f.expiresIn > 0 {
		exp := time.Now().Add(f.expiresIn)
		c.ExpiresAt = &exp
	}
	return c, nil
}

// buildFilters streams every feed concurrently and returns one bloom filter
// per feed.
func buildFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, feed := range feeds {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64

			if err := streamGzFile(ctx, feed, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("feed", i+1), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "filter feed %d", i+1)
			}

			slog.Info("pass 1 complete", slog.Int("feed", i+1), slog.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// collectCodes re-streams each feed, keeping codes that another feed's
// filter also contains. Per-feed presence is tracked as a bitmask so a code
// confirmed by bloom false positives in a single feed cannot slip through.
func collectCodes(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFeed := make([]map[string]uint, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, feed := range feeds {
		g.Go(func() error {
			candidates := make(map[string]uint)
			bit := uint(1) << uint(i)

			if err := streamGzFile(ctx, feed, func(code string) {
				for j, filter := range filters {
					if j == i {
						continue
					}
					if filter.TestString(code) {
						candidates[code] |= bit
						break
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan feed %d", i+1)
			}

			slog.Info("pass 2 complete", slog.Int("feed", i+1), slog.Int("candidates", len(candidates)))
			perFeed[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range perFeed {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var codes []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// streamGzFile opens a gzip-compressed feed and calls fn for each line that
// passes the length filter.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := scanner.Text()
		if len(code) >= minCodeLen && len(code) <= maxCodeLen {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeCoupons upserts one coupon per trusted code, stamped from the
// template.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, template *coupon.Coupon, codes []string) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	for i, code := range codes {
		c := *template
		c.Code = code
		// Coupon names are unique; derive one per code.
		c.Name = template.Name + " " + code
		if err := repo.Upsert(ctx, &c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
