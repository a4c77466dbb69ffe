// Package codec converts records and users to protobuf Structs.
// The same encoding is used on disk and on the wire.
package codec

import (
	"flash-feed/domain"
	"flash-feed/errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	FieldKey       = "key"
	FieldID        = "id"
	FieldSender    = "sender"
	FieldBody      = "body"
	FieldCreatedAt = "created_at"
)

func RecordToStruct(record domain.Record) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldKey:       structpb.NewStringValue(record.Key),
		FieldID:        structpb.NewStringValue(record.ID.String()),
		FieldSender:    structpb.NewStringValue(record.Sender),
		FieldBody:      structpb.NewStringValue(record.Body),
		FieldCreatedAt: structpb.NewStringValue(record.CreatedAt.UTC().Format(time.RFC3339Nano)),
	}}
}

func RecordFromStruct(s *structpb.Struct) (domain.Record, error) {
	fields := s.GetFields()
	id, err := uuid.Parse(fields[FieldID].GetStringValue())
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: id: %v", errors.ErrInvalidRecord, err)
	}
	var createdAt time.Time
	if raw := fields[FieldCreatedAt].GetStringValue(); raw != "" {
		createdAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Record{}, fmt.Errorf("%w: created_at: %v", errors.ErrInvalidRecord, err)
		}
	}
	return domain.Record{
		Key:       fields[FieldKey].GetStringValue(),
		ID:        id,
		Sender:    fields[FieldSender].GetStringValue(),
		Body:      fields[FieldBody].GetStringValue(),
		CreatedAt: createdAt.UTC(),
	}, nil
}

func MarshalRecord(record domain.Record) ([]byte, error) {
	return proto.Marshal(RecordToStruct(record))
}

func UnmarshalRecord(b []byte) (domain.Record, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", errors.ErrInvalidRecord, err)
	}
	return RecordFromStruct(&s)
}
