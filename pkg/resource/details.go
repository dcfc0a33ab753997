package resource

// Effect is a localized effect description.
type Effect struct {
	Effect      string        `json:"effect"`
	ShortEffect string        `json:"short_effect"`
	Language    NamedResource `json:"language"`
}

// FlavorText is a localized flavor text entry.
type FlavorText struct {
	FlavorText   string        `json:"flavor_text"`
	Language     NamedResource `json:"language"`
	VersionGroup NamedResource `json:"version_group"`
}

// AbilityPokemon links an ability to a Pokémon that can have it.
type AbilityPokemon struct {
	IsHidden bool          `json:"is_hidden"`
	Slot     int           `json:"slot"`
	Pokemon  NamedResource `json:"pokemon"`
}

// AbilityDetail is the /ability/{name} record.
type AbilityDetail struct {
	ID                int              `json:"id"`
	Name              string           `json:"name"`
	IsMainSeries      bool             `json:"is_main_series"`
	Generation        NamedResource    `json:"generation"`
	EffectEntries     []Effect         `json:"effect_entries"`
	FlavorTextEntries []FlavorText     `json:"flavor_text_entries"`
	Pokemon           []AbilityPokemon `json:"pokemon"`
}

func (d AbilityDetail) RecordID() int      { return d.ID }
func (d AbilityDetail) RecordName() string { return d.Name }

// FlavorPotency is the potency of one flavor in a berry.
type FlavorPotency struct {
	Potency int           `json:"potency"`
	Flavor  NamedResource `json:"flavor"`
}

// BerryDetail is the /berry/{name} record.
type BerryDetail struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	GrowthTime       int             `json:"growth_time"`
	MaxHarvest       int             `json:"max_harvest"`
	NaturalGiftPower int             `json:"natural_gift_power"`
	Size             int             `json:"size"`
	Smoothness       int             `json:"smoothness"`
	SoilDryness      int             `json:"soil_dryness"`
	Firmness         NamedResource   `json:"firmness"`
	Flavors          []FlavorPotency `json:"flavors"`
	Item             NamedResource   `json:"item"`
	NaturalGiftType  NamedResource   `json:"natural_gift_type"`
}

func (d BerryDetail) RecordID() int      { return d.ID }
func (d BerryDetail) RecordName() string { return d.Name }

// ItemSprites holds item sprite URLs.
type ItemSprites struct {
	Default string `json:"default"`
}

// ItemDetail is the /item/{name} record.
type ItemDetail struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Cost          int             `json:"cost"`
	FlingPower    *int            `json:"fling_power"`
	Category      NamedResource   `json:"category"`
	Attributes    []NamedResource `json:"attributes"`
	EffectEntries []Effect        `json:"effect_entries"`
	Sprites       ItemSprites     `json:"sprites"`
}

func (d ItemDetail) RecordID() int      { return d.ID }
func (d ItemDetail) RecordName() string { return d.Name }

// MoveDetail is the /move/{name} record. Nullable stats are pointers.
type MoveDetail struct {
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	Accuracy      *int          `json:"accuracy"`
	EffectChance  *int          `json:"effect_chance"`
	PP            *int          `json:"pp"`
	Priority      int           `json:"priority"`
	Power         *int          `json:"power"`
	DamageClass   NamedResource `json:"damage_class"`
	Type          NamedResource `json:"type"`
	Generation    NamedResource `json:"generation"`
	EffectEntries []Effect      `json:"effect_entries"`
}

func (d MoveDetail) RecordID() int      { return d.ID }
func (d MoveDetail) RecordName() string { return d.Name }

// DamageRelations lists type effectiveness in both directions.
type DamageRelations struct {
	NoDamageTo       []NamedResource `json:"no_damage_to"`
	HalfDamageTo     []NamedResource `json:"half_damage_to"`
	DoubleDamageTo   []NamedResource `json:"double_damage_to"`
	NoDamageFrom     []NamedResource `json:"no_damage_from"`
	HalfDamageFrom   []NamedResource `json:"half_damage_from"`
	DoubleDamageFrom []NamedResource `json:"double_damage_from"`
}

// TypePokemon links a type to a Pokémon slot.
type TypePokemon struct {
	Slot    int           `json:"slot"`
	Pokemon NamedResource `json:"pokemon"`
}

// TypeDetail is the /type/{name} record.
type TypeDetail struct {
	ID              int             `json:"id"`
	Name            string          `json:"name"`
	DamageRelations DamageRelations `json:"damage_relations"`
	Generation      NamedResource   `json:"generation"`
	MoveDamageClass *NamedResource  `json:"move_damage_class"`
	Moves           []NamedResource `json:"moves"`
	Pokemon         []TypePokemon   `json:"pokemon"`
}

func (d TypeDetail) RecordID() int      { return d.ID }
func (d TypeDetail) RecordName() string { return d.Name }
