package world

import (
	"fmt"
)

type EntityID uint64

// InvalidEntityID is never allocated.
const InvalidEntityID EntityID = 0

type ZoneID uint32

// OriginZone is created at genesis.
const OriginZone ZoneID = 0

const (
	MaxWorldNameLen = 64
	MaxZoneNameLen  = 64
)

type EntityKind uint8

const (
	KindResource EntityKind = iota
	KindCreature
	KindItem
	KindStructure
)

var entityKindNames = [...]string{"resource", "creature", "item", "structure"}

func (k EntityKind) String() string {
	if int(k) < len(entityKindNames) {
		return entityKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k EntityKind) Valid() bool { return int(k) < len(entityKindNames) }

func ParseEntityKind(s string) (EntityKind, error) {
	for i, n := range entityKindNames {
		if n == s {
			return EntityKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity kind %q", s)
}

func (k EntityKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid entity kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *EntityKind) UnmarshalText(b []byte) error {
	v, err := ParseEntityKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

type EntityState uint8

const (
	StateActive EntityState = iota
	StateDormant
	StateDead
)

var entityStateNames = [...]string{"active", "dormant", "dead"}

func (s EntityState) String() string {
	if int(s) < len(entityStateNames) {
		return entityStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func (s EntityState) Valid() bool { return int(s) < len(entityStateNames) }

func ParseEntityState(v string) (EntityState, error) {
	for i, n := range entityStateNames {
		if n == v {
			return EntityState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity state %q", v)
}

func (s EntityState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid entity state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *EntityState) UnmarshalText(b []byte) error {
	v, err := ParseEntityState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

type WorldPos struct {
	Zone ZoneID   `json:"zone"`
	Pos  Position `json:"pos"`
}

// Properties are optional per-entity attributes used by the rules.
type Properties struct {
	Name   *string `json:"name,omitempty"`
	Amount *uint32 `json:"amount,omitempty"`
	Health *uint32 `json:"health,omitempty"`
}

func (p Properties) clone() Properties {
	var out Properties
	if p.Name != nil {
		v := *p.Name
		out.Name = &v
	}
	if p.Amount != nil {
		v := *p.Amount
		out.Amount = &v
	}
	if p.Health != nil {
		v := *p.Health
		out.Health = &v
	}
	return out
}

type Entity struct {
	ID         EntityID    `json:"id"`
	Kind       EntityKind  `json:"kind"`
	State      EntityState `json:"state"`
	Position   WorldPos    `json:"position"`
	CreatedAt  uint64      `json:"created_at"`
	Properties Properties  `json:"properties"`
}

func (e *Entity) IsActive() bool { return e.State == StateActive }
func (e *Entity) IsDead() bool   { return e.State == StateDead }

// Clone returns a deep copy; callers outside the world loop only ever see copies.
func (e *Entity) Clone() Entity {
	c := *e
	c.Properties = e.Properties.clone()
	return c
}

type Zone struct {
	ID     ZoneID  `json:"id"`
	Name   *string `json:"name,omitempty"`
	Loaded bool    `json:"loaded"`
	// Entities lists members in the order they joined the zone.
	Entities []EntityID `json:"entities"`
}

func (z *Zone) Clone() Zone {
	c := *z
	if z.Name != nil {
		n := *z.Name
		c.Name = &n
	}
	c.Entities = append([]EntityID(nil), z.Entities...)
	return c
}

func (z *Zone) addMember(id EntityID) {
	for _, m := range z.Entities {
		if m == id {
			return
		}
	}
	z.Entities = append(z.Entities, id)
}

func (z *Zone) removeMember(id EntityID) {
	for i, m := range z.Entities {
		if m == id {
			z.Entities = append(z.Entities[:i], z.Entities[i+1:]...)
			return
		}
	}
}

func strPtr(s string) *string { return &s }

func u32Ptr(v uint32) *uint32 { return &v }
