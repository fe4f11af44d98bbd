package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alimasry/typing-replay/replay"
)

// FirestoreStore keeps each document in a collection and its revisions in an
// "operations" subcollection keyed by zero-padded index.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore stores documents in collection, "documents" when empty.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = "documents"
	}
	return &FirestoreStore{client: client, collection: collection}
}

func (s *FirestoreStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) opsCollection(id string) *firestore.CollectionRef {
	return s.docRef(id).Collection("operations")
}

func zeroPad(index int) string {
	return fmt.Sprintf("%010d", index)
}

func (s *FirestoreStore) Create(ctx context.Context, id, content string) error {
	now := time.Now()
	_, err := s.docRef(id).Create(ctx, map[string]interface{}{
		"content":   content,
		"version":   0,
		"createdAt": now,
		"updatedAt": now,
	})
	if status.Code(err) == codes.AlreadyExists {
		return exists(id)
	}
	return err
}

func (s *FirestoreStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	snap, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	info := snapshotToDocInfo(id, snap)
	return &info, nil
}

func snapshotToDocInfo(id string, snap *firestore.DocumentSnapshot) DocumentInfo {
	data := snap.Data()
	content, _ := data["content"].(string)
	version, _ := data["version"].(int64)
	createdAt, _ := data["createdAt"].(time.Time)
	updatedAt, _ := data["updatedAt"].(time.Time)
	return DocumentInfo{
		ID:        id,
		Content:   content,
		Version:   int(version),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func (s *FirestoreStore) List(ctx context.Context) ([]DocumentInfo, error) {
	iter := s.client.Collection(s.collection).OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var result []DocumentInfo
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, snapshotToDocInfo(snap.Ref.ID, snap))
	}
	return result, nil
}

func (s *FirestoreStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	_, err := s.docRef(id).Update(ctx, []firestore.Update{
		{Path: "content", Value: content},
		{Path: "version", Value: version},
		{Path: "updatedAt", Value: time.Now()},
	})
	if status.Code(err) == codes.NotFound {
		return notFound(id)
	}
	return err
}

func (s *FirestoreStore) AppendOperation(ctx context.Context, id string, seq replay.Sequence, version int) error {
	ops := seq.Ops()
	components := make([]map[string]interface{}, len(ops))
	for i, op := range ops {
		components[i] = map[string]interface{}{
			"content": op.Content,
			"type":    op.Kind.String(),
		}
	}

	// Revision v lives at index v-1, so GetOperations(from) starts at index from.
	ref := s.opsCollection(id).Doc(zeroPad(version - 1))
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(s.docRef(id)); err != nil {
			if status.Code(err) == codes.NotFound {
				return notFound(id)
			}
			return err
		}
		if version > 1 {
			_, err := tx.Get(s.opsCollection(id).Doc(zeroPad(version - 2)))
			if status.Code(err) == codes.NotFound {
				return conflict(id, version, version-2)
			}
			if err != nil {
				return err
			}
		}
		_, err := tx.Get(ref)
		if err == nil {
			return fmt.Errorf("document %q: revision %d already stored: %w", id, version, ErrConflict)
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		return tx.Create(ref, map[string]interface{}{
			"ops":     components,
			"version": version,
		})
	})
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("document %q: revision %d already stored: %w", id, version, ErrConflict)
	}
	return err
}

func (s *FirestoreStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]replay.Sequence, error) {
	_, err := s.docRef(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}

	iter := s.opsCollection(id).
		OrderBy(firestore.DocumentID, firestore.Asc).
		StartAt(zeroPad(fromVersion)).
		Documents(ctx)
	defer iter.Stop()

	var result []replay.Sequence
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		seq, err := snapshotToSequence(snap)
		if err != nil {
			return nil, err
		}
		result = append(result, seq)
	}
	return result, nil
}

func snapshotToSequence(snap *firestore.DocumentSnapshot) (replay.Sequence, error) {
	raw, ok := snap.Data()["ops"].([]interface{})
	if !ok {
		return replay.Sequence{}, fmt.Errorf("invalid ops field in operation %s", snap.Ref.ID)
	}

	ops := make([]replay.DiffOp, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return replay.Sequence{}, fmt.Errorf("invalid component %d in operation %s", i, snap.Ref.ID)
		}
		tag, _ := m["type"].(string)
		kind, err := replay.ParseKind(tag)
		if err != nil {
			return replay.Sequence{}, fmt.Errorf("component %d in operation %s: %w", i, snap.Ref.ID, err)
		}
		content, _ := m["content"].(string)
		ops[i] = replay.DiffOp{Content: content, Kind: kind}
	}
	return replay.NewSequence(ops)
}
