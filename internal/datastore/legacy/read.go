package legacy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/movingbox/storemigrate/internal/datastore/v2/entities"
	"github.com/movingbox/storemigrate/internal/logger"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Every enumerator below yields rows in primary-key order. A *DecodeError in
// the error position marks a skipped row and the sequence continues; any other
// error is fatal and ends the sequence.

// Homes enumerates ZHOME.
func (s *Store) Homes(ctx context.Context) iter.Seq2[Home, error] {
	query := "SELECT Z_PK, ZNAME, ZADDRESS1, ZCITY, ZISPRIMARY, ZCREATEDAT, ZIMAGEURL, " +
		s.secondaryColumn() + " FROM ZHOME ORDER BY Z_PK"

	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (Home, error) {
		var h Home
		var name, address, city, primary, created any
		var imageURL, secondary any
		if err := rows.Scan(&h.PK, &name, &address, &city, &primary, &created, &imageURL, &secondary); err != nil {
			return h, err
		}

		var ok bool
		if h.Name, ok = requiredString(name); !ok {
			return h, &DecodeError{Kind: entities.KindHome, LegacyID: h.PK, Field: "ZNAME", Reason: "missing name"}
		}
		h.Address1, _ = asString(address)
		h.City, _ = asString(city)
		h.IsPrimary = asBool(primary)

		createdAt, err := asTimestamp(created)
		if err != nil {
			return h, &DecodeError{Kind: entities.KindHome, LegacyID: h.PK, Field: "ZCREATEDAT", Reason: err.Error()}
		}
		h.CreatedAt = createdAt
		h.Photos = s.photoRefs(entities.KindHome, h.PK, imageURL, secondary)
		return h, nil
	})
}

// Locations enumerates ZLOCATION.
func (s *Store) Locations(ctx context.Context) iter.Seq2[Location, error] {
	query := "SELECT Z_PK, ZNAME, ZDESC, ZHOME, ZIMAGEURL, " +
		s.secondaryColumn() + " FROM ZLOCATION ORDER BY Z_PK"

	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (Location, error) {
		var l Location
		var name, desc, home, imageURL, secondary any
		if err := rows.Scan(&l.PK, &name, &desc, &home, &imageURL, &secondary); err != nil {
			return l, err
		}

		var ok bool
		if l.Name, ok = requiredString(name); !ok {
			return l, &DecodeError{Kind: entities.KindLocation, LegacyID: l.PK, Field: "ZNAME", Reason: "missing name"}
		}
		l.Description, _ = asString(desc)
		l.HomePK = asInt64Ptr(home)
		l.Photos = s.photoRefs(entities.KindLocation, l.PK, imageURL, secondary)
		return l, nil
	})
}

// Labels enumerates ZLABEL.
func (s *Store) Labels(ctx context.Context) iter.Seq2[Label, error] {
	query := "SELECT Z_PK, ZNAME, ZCOLOR, ZEMOJI FROM ZLABEL ORDER BY Z_PK"

	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (Label, error) {
		var l Label
		var name, color, emoji any
		if err := rows.Scan(&l.PK, &name, &color, &emoji); err != nil {
			return l, err
		}

		var ok bool
		if l.Name, ok = requiredString(name); !ok {
			return l, &DecodeError{Kind: entities.KindLabel, LegacyID: l.PK, Field: "ZNAME", Reason: "missing name"}
		}
		if c, _ := asString(color); c != "" {
			if !hexColor.MatchString(c) {
				return l, &DecodeError{Kind: entities.KindLabel, LegacyID: l.PK, Field: "ZCOLOR", Reason: fmt.Sprintf("not a hex colour: %q", c)}
			}
			l.ColorHex = strings.ToUpper(c)
		}
		l.Emoji, _ = asString(emoji)
		return l, nil
	})
}

// Items enumerates ZITEM.
func (s *Store) Items(ctx context.Context) iter.Seq2[Item, error] {
	homeColumn := "ZHOME"
	if s.version < 2 {
		homeColumn = "NULL"
	}
	query := "SELECT Z_PK, ZTITLE, ZQUANTITY, ZPRICE, ZNOTES, ZLOCATION, " + homeColumn +
		", ZCREATEDAT, ZIMAGEURL, " + s.secondaryColumn() + " FROM ZITEM ORDER BY Z_PK"

	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (Item, error) {
		var it Item
		var title, quantity, price, notes any
		var location, home, created any
		var imageURL, secondary any
		if err := rows.Scan(&it.PK, &title, &quantity, &price, &notes, &location, &home, &created, &imageURL, &secondary); err != nil {
			return it, err
		}

		var ok bool
		var err error
		if it.Title, ok = requiredString(title); !ok {
			return it, &DecodeError{Kind: entities.KindItem, LegacyID: it.PK, Field: "ZTITLE", Reason: "missing title"}
		}

		if it.Quantity, err = asCount(quantity, 1); err != nil {
			return it, &DecodeError{Kind: entities.KindItem, LegacyID: it.PK, Field: "ZQUANTITY", Reason: err.Error()}
		}

		if it.Price, err = asFloat(price, 0); err != nil {
			return it, &DecodeError{Kind: entities.KindItem, LegacyID: it.PK, Field: "ZPRICE", Reason: err.Error()}
		}

		it.Notes, _ = asString(notes)
		it.LocationPK = asInt64Ptr(location)
		it.HomePK = asInt64Ptr(home)

		if it.CreatedAt, err = asTimestamp(created); err != nil {
			return it, &DecodeError{Kind: entities.KindItem, LegacyID: it.PK, Field: "ZCREATEDAT", Reason: err.Error()}
		}
		it.Photos = s.photoRefs(entities.KindItem, it.PK, imageURL, secondary)
		return it, nil
	})
}

// Policies enumerates ZPOLICY.
func (s *Store) Policies(ctx context.Context) iter.Seq2[Policy, error] {
	query := "SELECT Z_PK, ZPROVIDER, ZPOLICYNUMBER, ZDEDUCTIBLE, ZSTART, ZEND FROM ZPOLICY ORDER BY Z_PK"

	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (Policy, error) {
		var p Policy
		var provider, number, deductible, st, en any
		if err := rows.Scan(&p.PK, &provider, &number, &deductible, &st, &en); err != nil {
			return p, err
		}

		p.Provider, _ = asString(provider)
		p.PolicyNumber, _ = asString(number)

		var err error
		if p.Deductible, err = asFloat(deductible, 0); err != nil {
			return p, &DecodeError{Kind: entities.KindPolicy, LegacyID: p.PK, Field: "ZDEDUCTIBLE", Reason: err.Error()}
		}
		if p.Start, err = asOptionalTimestamp(st); err != nil {
			return p, &DecodeError{Kind: entities.KindPolicy, LegacyID: p.PK, Field: "ZSTART", Reason: err.Error()}
		}
		if p.End, err = asOptionalTimestamp(en); err != nil {
			return p, &DecodeError{Kind: entities.KindPolicy, LegacyID: p.PK, Field: "ZEND", Reason: err.Error()}
		}
		return p, nil
	})
}

// ItemLabels enumerates Z_ITEMLABELS.
func (s *Store) ItemLabels(ctx context.Context) iter.Seq2[ItemLabel, error] {
	query := "SELECT Z_ITEM, Z_LABEL FROM Z_ITEMLABELS ORDER BY Z_ITEM, Z_LABEL"
	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (ItemLabel, error) {
		var l ItemLabel
		err := rows.Scan(&l.ItemPK, &l.LabelPK)
		return l, err
	})
}

// HomePolicies enumerates Z_HOMEPOLICIES.
func (s *Store) HomePolicies(ctx context.Context) iter.Seq2[HomePolicy, error] {
	query := "SELECT Z_HOME, Z_POLICY FROM Z_HOMEPOLICIES ORDER BY Z_HOME, Z_POLICY"
	return enumerate(ctx, s.db, query, func(rows *sql.Rows) (HomePolicy, error) {
		var p HomePolicy
		err := rows.Scan(&p.HomePK, &p.PolicyPK)
		return p, err
	})
}

func (s *Store) secondaryColumn() string {
	if s.version >= 3 {
		return "ZSECONDARYPHOTOURLS"
	}
	return "NULL"
}

// photoRefs decodes the primary URL and the secondary JSON array. A malformed
// array drops the secondaries, keeps the row and records why in
// SecondaryError.
func (s *Store) photoRefs(kind string, pk int64, primary, secondary any) PhotoRefs {
	refs := PhotoRefs{}
	refs.Primary, _ = asString(primary)

	raw, ok := asString(secondary)
	if !ok || strings.TrimSpace(raw) == "" {
		return refs
	}

	paths, err := decodeSecondaryPaths(raw)
	if err != nil {
		s.log.Warn("dropping malformed secondary photo list",
			logger.String("kind", kind),
			logger.Int64("legacy_id", pk),
			logger.Error(err))
		refs.SecondaryError = err.Error()
		return refs
	}
	refs.Secondary = paths
	return refs
}

func decodeSecondaryPaths(raw string) ([]string, error) {
	v, err := jason.NewValueFromBytes([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	arr, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("not a JSON array: %w", err)
	}
	paths := make([]string, 0, len(arr))
	for i, elem := range arr {
		p, err := elem.String()
		if err != nil {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// enumerate runs query and yields one scanned value per row.
func enumerate[T any](ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) (T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			yield(zero, fmt.Errorf("query legacy store: %w", err))
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				var de *DecodeError
				if !errors.As(err, &de) {
					yield(zero, fmt.Errorf("scan legacy row: %w", err))
					return
				}
				if !yield(v, de) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("read legacy rows: %w", err))
		}
	}
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

func requiredString(v any) (string, bool) {
	s, ok := asString(v)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

func asBool(v any) bool {
	switch t := v.(type) {
	case int64:
		return t != 0
	case float64:
		return t != 0
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

func asInt64Ptr(v any) *int64 {
	switch t := v.(type) {
	case int64:
		return &t
	case float64:
		n := int64(t)
		return &n
	default:
		return nil
	}
}

func asFloat(v any, def float64) (float64, error) {
	switch t := v.(type) {
	case nil:
		return def, nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string, []byte:
		s, _ := asString(t)
		if strings.TrimSpace(s) == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric value %q", s)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// asCount decodes a whole number. Fractions, NaN, infinities and values
// beyond int32 are errors rather than truncated.
func asCount(v any, def int) (int, error) {
	f, err := asFloat(v, float64(def))
	if err != nil {
		return 0, err
	}
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, fmt.Errorf("non-finite value %v", f)
	case f != math.Trunc(f):
		return 0, fmt.Errorf("fractional value %v", f)
	case math.Abs(f) > math.MaxInt32:
		return 0, fmt.Errorf("value %v out of range", f)
	}
	return int(f), nil
}

// asTimestamp converts seconds since the reference date. NULL maps to the
// reference date itself.
func asTimestamp(v any) (time.Time, error) {
	t, err := asOptionalTimestamp(v)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return referenceDate, nil
	}
	return *t, nil
}

func asOptionalTimestamp(v any) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	secs, err := asFloat(v, 0)
	if err != nil {
		return nil, fmt.Errorf("non-numeric timestamp")
	}
	t := referenceDate.Add(time.Duration(secs * float64(time.Second))).UTC()
	return &t, nil
}
