package wire

import (
	"flash-feed/domain"
	"flash-feed/infrastructure/codec"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldEmail        = "email"
	fieldPassword     = "password"
	fieldToken        = "token"
	fieldUserID       = "user_id"
	fieldConversation = "conversation"
)

type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldEmail:    structpb.NewStringValue(c.Email),
		fieldPassword: structpb.NewStringValue(c.Password),
	}}
}

func CredentialsFrom(s *structpb.Struct) Credentials {
	fields := s.GetFields()
	return Credentials{
		Email:    fields[fieldEmail].GetStringValue(),
		Password: fields[fieldPassword].GetStringValue(),
	}
}

// AuthResponse is returned by Register and Login.
type AuthResponse struct {
	Token    string
	Identity domain.Identity
}

func (r AuthResponse) ToStruct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldToken:  structpb.NewStringValue(r.Token),
		fieldUserID: structpb.NewStringValue(r.Identity.UserID),
		fieldEmail:  structpb.NewStringValue(r.Identity.Email),
	}}
}

func AuthResponseFrom(s *structpb.Struct) AuthResponse {
	fields := s.GetFields()
	return AuthResponse{
		Token: fields[fieldToken].GetStringValue(),
		Identity: domain.Identity{
			UserID: fields[fieldUserID].GetStringValue(),
			Email:  fields[fieldEmail].GetStringValue(),
		},
	}
}

// NewAppendRequest encodes the record together with its conversation.
// The sender is not trusted by the server and may be left empty.
func NewAppendRequest(conversation domain.ConversationID, record domain.Record) *structpb.Struct {
	s := codec.RecordToStruct(record)
	s.Fields[fieldConversation] = structpb.NewStringValue(conversation.String())
	return s
}

func AppendRequestFrom(s *structpb.Struct) (domain.ConversationID, domain.Record, error) {
	record, err := codec.RecordFromStruct(s)
	if err != nil {
		return "", domain.Record{}, err
	}
	return domain.ConversationID(s.GetFields()[fieldConversation].GetStringValue()), record, nil
}
