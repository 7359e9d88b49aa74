package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/schedule.schema.json
var scheduleSchemaJSON string

var (
	scheduleSchemaOnce sync.Once
	scheduleSchema     *jsonschema.Schema
	scheduleSchemaErr  error
)

func compiledScheduleSchema() (*jsonschema.Schema, error) {
	scheduleSchemaOnce.Do(func() {
		scheduleSchema, scheduleSchemaErr = jsonschema.CompileString("schedule.schema.json", scheduleSchemaJSON)
	})
	return scheduleSchema, scheduleSchemaErr
}

// ValidateSchedule checks raw JSON against the schedule schema.
func ValidateSchedule(raw []byte) error {
	s, err := compiledScheduleSchema()
	if err != nil {
		return fmt.Errorf("compile schedule schema: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	return nil
}

// DecodeSchedule validates and decodes a schedule. Commands are returned in a
// stable order: ascending tick, then file order within a tick.
func DecodeSchedule(raw []byte) (ScheduleMsg, error) {
	var msg ScheduleMsg
	if err := ValidateSchedule(raw); err != nil {
		return msg, err
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("%s: %w", ErrProtoBadRequest, err)
	}
	if msg.ProtocolVersion != Version {
		return msg, fmt.Errorf("%s: protocol_version %q, want %q", ErrProtoBadRequest, msg.ProtocolVersion, Version)
	}
	sort.SliceStable(msg.Commands, func(i, j int) bool { return msg.Commands[i].Tick < msg.Commands[j].Tick })
	return msg, nil
}
