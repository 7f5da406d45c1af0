package testutil

import (
	"encoding/json"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultCreatedAt is the creation time builders use unless told otherwise.
var DefaultCreatedAt = time.Date(2022, time.March, 14, 9, 0, 0, 0, time.UTC)

// photoCols holds the photo columns shared by homes, locations and items.
type photoCols struct {
	primary   any
	secondary any
}

func (p *photoCols) set(s *LegacySeeder, primary string, secondary []string) {
	if primary != "" {
		p.primary = primary
	}
	if len(secondary) == 0 {
		return
	}
	require.GreaterOrEqual(s.t, s.version, 3, "secondary photos need schema version 3")
	raw, err := json.Marshal(secondary)
	require.NoError(s.t, err)
	p.secondary = string(raw)
}

func (p *photoCols) appendTo(s *LegacySeeder, cols []string, vals []any) ([]string, []any) {
	cols = append(cols, "ZIMAGEURL")
	vals = append(vals, p.primary)
	if s.version >= 3 {
		cols = append(cols, "ZSECONDARYPHOTOURLS")
		vals = append(vals, p.secondary)
	}
	return cols, vals
}

// HomeBuilder builds a ZHOME row.
type HomeBuilder struct {
	s         *LegacySeeder
	name      any
	address   any
	city      any
	isPrimary int
	createdAt any
	photos    photoCols
}

// Home starts a home with the given name.
func (s *LegacySeeder) Home(name string) *HomeBuilder {
	return &HomeBuilder{s: s, name: name, createdAt: CoreDataSeconds(DefaultCreatedAt)}
}

// NullName stores NULL as the name.
func (b *HomeBuilder) NullName() *HomeBuilder {
	b.name = nil
	return b
}

// Address sets ZADDRESS1.
func (b *HomeBuilder) Address(address string) *HomeBuilder {
	b.address = address
	return b
}

// City sets ZCITY.
func (b *HomeBuilder) City(city string) *HomeBuilder {
	b.city = city
	return b
}

// Primary flags the home as primary.
func (b *HomeBuilder) Primary() *HomeBuilder {
	b.isPrimary = 1
	return b
}

// CreatedAt sets ZCREATEDAT.
func (b *HomeBuilder) CreatedAt(t time.Time) *HomeBuilder {
	b.createdAt = CoreDataSeconds(t)
	return b
}

// CreatedRaw stores v in ZCREATEDAT as is.
func (b *HomeBuilder) CreatedRaw(v any) *HomeBuilder {
	b.createdAt = v
	return b
}

// Photos sets the primary and secondary photo paths.
func (b *HomeBuilder) Photos(primary string, secondary ...string) *HomeBuilder {
	b.photos.set(b.s, primary, secondary)
	return b
}

// SecondaryRaw stores raw in ZSECONDARYPHOTOURLS as is.
func (b *HomeBuilder) SecondaryRaw(raw string) *HomeBuilder {
	b.photos.secondary = raw
	return b
}

// Insert writes the row and returns its Z_PK.
func (b *HomeBuilder) Insert() int64 {
	b.s.t.Helper()
	cols := []string{"ZNAME", "ZADDRESS1", "ZCITY", "ZISPRIMARY", "ZCREATEDAT"}
	vals := []any{b.name, b.address, b.city, b.isPrimary, b.createdAt}
	cols, vals = b.photos.appendTo(b.s, cols, vals)
	return b.s.insert("ZHOME", cols, vals)
}

// LocationBuilder builds a ZLOCATION row.
type LocationBuilder struct {
	s      *LegacySeeder
	name   any
	desc   any
	home   any
	photos photoCols
}

// Location starts a location with the given name.
func (s *LegacySeeder) Location(name string) *LocationBuilder {
	return &LocationBuilder{s: s, name: name}
}

// NullName stores NULL as the name.
func (b *LocationBuilder) NullName() *LocationBuilder {
	b.name = nil
	return b
}

// Description sets ZDESC.
func (b *LocationBuilder) Description(desc string) *LocationBuilder {
	b.desc = desc
	return b
}

// Home sets the owning home Z_PK. Any value is accepted, including ones that
// point nowhere.
func (b *LocationBuilder) Home(homePK int64) *LocationBuilder {
	b.home = homePK
	return b
}

// Photos sets the primary and secondary photo paths.
func (b *LocationBuilder) Photos(primary string, secondary ...string) *LocationBuilder {
	b.photos.set(b.s, primary, secondary)
	return b
}

// Insert writes the row and returns its Z_PK.
func (b *LocationBuilder) Insert() int64 {
	b.s.t.Helper()
	cols := []string{"ZNAME", "ZDESC", "ZHOME"}
	vals := []any{b.name, b.desc, b.home}
	cols, vals = b.photos.appendTo(b.s, cols, vals)
	return b.s.insert("ZLOCATION", cols, vals)
}

// LabelBuilder builds a ZLABEL row.
type LabelBuilder struct {
	s     *LegacySeeder
	name  any
	color any
	emoji any
}

// Label starts a label with the given name.
func (s *LegacySeeder) Label(name string) *LabelBuilder {
	return &LabelBuilder{s: s, name: name}
}

// Color sets ZCOLOR.
func (b *LabelBuilder) Color(color string) *LabelBuilder {
	b.color = color
	return b
}

// Emoji sets ZEMOJI.
func (b *LabelBuilder) Emoji(emoji string) *LabelBuilder {
	b.emoji = emoji
	return b
}

// Insert writes the row and returns its Z_PK.
func (b *LabelBuilder) Insert() int64 {
	b.s.t.Helper()
	return b.s.insert("ZLABEL", []string{"ZNAME", "ZCOLOR", "ZEMOJI"}, []any{b.name, b.color, b.emoji})
}

// ItemBuilder builds a ZITEM row.
type ItemBuilder struct {
	s         *LegacySeeder
	title     any
	quantity  any
	price     any
	notes     any
	location  any
	home      any
	createdAt any
	photos    photoCols
}

// Item starts an item with the given title.
func (s *LegacySeeder) Item(title string) *ItemBuilder {
	return &ItemBuilder{s: s, title: title, quantity: 1, createdAt: CoreDataSeconds(DefaultCreatedAt)}
}

// NullTitle stores NULL as the title.
func (b *ItemBuilder) NullTitle() *ItemBuilder {
	b.title = nil
	return b
}

// Quantity sets ZQUANTITY.
func (b *ItemBuilder) Quantity(q int) *ItemBuilder {
	b.quantity = q
	return b
}

// Price sets ZPRICE.
func (b *ItemBuilder) Price(p float64) *ItemBuilder {
	b.price = p
	return b
}

// Notes sets ZNOTES.
func (b *ItemBuilder) Notes(n string) *ItemBuilder {
	b.notes = n
	return b
}

// Location sets the owning location Z_PK.
func (b *ItemBuilder) Location(locationPK int64) *ItemBuilder {
	b.location = locationPK
	return b
}

// Home sets the owning home Z_PK. Version 1 stores have no such column.
func (b *ItemBuilder) Home(homePK int64) *ItemBuilder {
	require.GreaterOrEqual(b.s.t, b.s.version, 2, "ZITEM.ZHOME needs schema version 2")
	b.home = homePK
	return b
}

// CreatedAt sets ZCREATEDAT.
func (b *ItemBuilder) CreatedAt(t time.Time) *ItemBuilder {
	b.createdAt = CoreDataSeconds(t)
	return b
}

// CreatedRaw stores v in ZCREATEDAT as is.
func (b *ItemBuilder) CreatedRaw(v any) *ItemBuilder {
	b.createdAt = v
	return b
}

// Photos sets the primary and secondary photo paths.
func (b *ItemBuilder) Photos(primary string, secondary ...string) *ItemBuilder {
	b.photos.set(b.s, primary, secondary)
	return b
}

// SecondaryRaw stores raw in ZSECONDARYPHOTOURLS as is.
func (b *ItemBuilder) SecondaryRaw(raw string) *ItemBuilder {
	b.photos.secondary = raw
	return b
}

// Insert writes the row and returns its Z_PK.
func (b *ItemBuilder) Insert() int64 {
	b.s.t.Helper()
	cols := []string{"ZTITLE", "ZQUANTITY", "ZPRICE", "ZNOTES", "ZLOCATION"}
	vals := []any{b.title, b.quantity, b.price, b.notes, b.location}
	if b.s.version >= 2 {
		cols = append(cols, "ZHOME")
		vals = append(vals, b.home)
	}
	cols = append(cols, "ZCREATEDAT")
	vals = append(vals, b.createdAt)
	cols, vals = b.photos.appendTo(b.s, cols, vals)
	return b.s.insert("ZITEM", cols, vals)
}

// PolicyBuilder builds a ZPOLICY row.
type PolicyBuilder struct {
	s          *LegacySeeder
	provider   any
	number     any
	deductible any
	start      any
	end        any
}

// Policy starts a policy with the given provider.
func (s *LegacySeeder) Policy(provider string) *PolicyBuilder {
	return &PolicyBuilder{s: s, provider: provider}
}

// Number sets ZPOLICYNUMBER.
func (b *PolicyBuilder) Number(n string) *PolicyBuilder {
	b.number = n
	return b
}

// Deductible sets ZDEDUCTIBLE.
func (b *PolicyBuilder) Deductible(d float64) *PolicyBuilder {
	b.deductible = d
	return b
}

// Period sets ZSTART and ZEND.
func (b *PolicyBuilder) Period(start, end time.Time) *PolicyBuilder {
	b.start = CoreDataSeconds(start)
	b.end = CoreDataSeconds(end)
	return b
}

// Insert writes the row and returns its Z_PK.
func (b *PolicyBuilder) Insert() int64 {
	b.s.t.Helper()
	return b.s.insert("ZPOLICY",
		[]string{"ZPROVIDER", "ZPOLICYNUMBER", "ZDEDUCTIBLE", "ZSTART", "ZEND"},
		[]any{b.provider, b.number, b.deductible, b.start, b.end})
}
