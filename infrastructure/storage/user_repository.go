//go:generate go run go.uber.org/mock/mockgen -source=user_repository.go -destination=../../mocks/mock_user_repository.go -package=mocks
package storage

import (
	stderrors "errors"
	"flash-feed/errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the repository representation of an account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

func userKey(email string) []byte {
	return []byte("user:" + strings.ToLower(email))
}

// CreateUser persists a new account and returns its generated ID.
// Emails are unique, case-insensitively.
func (u UserRepository) CreateUser(email, hashedPassword string) (string, error) {
	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}
	data, err := marshalUser(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

// GetUserByEmail returns ErrInvalidCredentials when no account matches.
func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			user, err = unmarshalUser(val)
			return err
		})
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func marshalUser(user User) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"id":            user.ID,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"roles":         lo.ToAnySlice(user.Roles),
		"created_at":    user.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func unmarshalUser(b []byte) (User, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return User{}, err
	}
	fields := s.GetFields()
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"].GetStringValue())
	if err != nil {
		return User{}, err
	}
	roles := lo.Map(fields["roles"].GetListValue().GetValues(), func(v *structpb.Value, _ int) string {
		return v.GetStringValue()
	})
	return User{
		ID:           fields["id"].GetStringValue(),
		Email:        fields["email"].GetStringValue(),
		PasswordHash: fields["password_hash"].GetStringValue(),
		Roles:        roles,
		CreatedAt:    createdAt.UTC(),
	}, nil
}
