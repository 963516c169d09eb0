package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PGStore is a Datastore reading the Galaxy relational schema.
type PGStore struct {
	db *sql.DB
}

// OpenPGStore opens a Postgres connection using the lib/pq driver.
func OpenPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing connection pool.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Close closes the connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

const hdaQuery = `
	SELECT hda.id, hda.hid, hda.name, hda.extension, COALESCE(hda.dbkey, '?'),
	       hda.deleted, hda.visible, COALESCE(hda.metadata, '{}'),
	       d.id, d.state, COALESCE(d.file_size, 0),
	       COALESCE(ARRAY(SELECT dp.role_id FROM dataset_permissions dp
	                      WHERE dp.dataset_id = d.id AND dp.action = 'access'), '{}')
	FROM history_dataset_association hda
	JOIN dataset d ON d.id = hda.dataset_id
	WHERE hda.id = $1`

// GetHDA implements Datastore.
func (s *PGStore) GetHDA(ctx context.Context, id int64) (*HDA, error) {
	hda, err := s.scanHDA(s.db.QueryRowContext(ctx, hdaQuery, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hda %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load hda %d: %w", id, err)
	}
	conversions, err := s.implicitConversions(ctx, id)
	if err != nil {
		return nil, err
	}
	hda.ImplicitConversions = conversions
	return hda, nil
}

func (s *PGStore) scanHDA(row *sql.Row) (*HDA, error) {
	var (
		hda      HDA
		dataset  Dataset
		metadata []byte
		roles    pq.Int64Array
		state    string
	)
	err := row.Scan(&hda.ID, &hda.HID, &hda.Name, &hda.Extension, &hda.DBKey,
		&hda.Deleted, &hda.Visible, &metadata,
		&dataset.ID, &state, &dataset.FileSize, &roles)
	if err != nil {
		return nil, err
	}
	dataset.State = DatasetState(state)
	dataset.AccessRoles = []int64(roles)
	hda.Dataset = &dataset
	hda.Metadata = decodeMetadata(metadata)
	return &hda, nil
}

func (s *PGStore) implicitConversions(ctx context.Context, id int64) (map[string]*HDA, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, hda_id FROM implicitly_converted_dataset_association
		 WHERE hda_parent_id = $1 AND deleted = false`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversions of hda %d: %w", id, err)
	}
	defer rows.Close()

	type pair struct {
		ext string
		id  int64
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.ext, &p.id); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conversions := make(map[string]*HDA, len(pairs))
	for _, p := range pairs {
		converted, err := s.scanHDA(s.db.QueryRowContext(ctx, hdaQuery, p.id))
		if err != nil {
			continue
		}
		conversions[p.ext] = converted
	}
	return conversions, nil
}

// GetLDDA implements Datastore.
func (s *PGStore) GetLDDA(ctx context.Context, id int64) (*LDDA, error) {
	var (
		ldda     LDDA
		dataset  Dataset
		metadata []byte
		state    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT l.id, l.name, l.extension, COALESCE(l.dbkey, '?'), l.deleted,
		       COALESCE(l.metadata, '{}'), d.id, d.state, COALESCE(d.file_size, 0)
		FROM library_dataset_dataset_association l
		JOIN dataset d ON d.id = l.dataset_id
		WHERE l.id = $1`, id).Scan(&ldda.ID, &ldda.Name, &ldda.Extension, &ldda.DBKey,
		&ldda.Deleted, &metadata, &dataset.ID, &state, &dataset.FileSize)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("ldda %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ldda %d: %w", id, err)
	}
	dataset.State = DatasetState(state)
	ldda.Dataset = &dataset
	ldda.Metadata = decodeMetadata(metadata)
	return &ldda, nil
}

// GetHDCA implements Datastore.
func (s *PGStore) GetHDCA(ctx context.Context, id int64) (*HDCA, error) {
	var (
		hdca         HDCA
		collectionID int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, hid, name, deleted, visible, collection_id
		FROM history_dataset_collection_association WHERE id = $1`, id).
		Scan(&hdca.ID, &hdca.HID, &hdca.Name, &hdca.Deleted, &hdca.Visible, &collectionID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("hdca %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load hdca %d: %w", id, err)
	}
	collection, err := s.loadCollection(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	hdca.Collection = collection
	return &hdca, nil
}

// GetDCE implements Datastore.
func (s *PGStore) GetDCE(ctx context.Context, id int64) (*DatasetCollectionElement, error) {
	var (
		dce     DatasetCollectionElement
		hdaID   sql.NullInt64
		lddaID  sql.NullInt64
		childID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, element_identifier, hda_id, ldda_id, child_collection_id
		FROM dataset_collection_element WHERE id = $1`, id).
		Scan(&dce.ID, &dce.ElementIdentifier, &hdaID, &lddaID, &childID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dce %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dce %d: %w", id, err)
	}
	if err := s.fillElement(ctx, &dce, hdaID, lddaID, childID); err != nil {
		return nil, err
	}
	return &dce, nil
}

func (s *PGStore) loadCollection(ctx context.Context, id int64) (*DatasetCollection, error) {
	collection := &DatasetCollection{ID: id}
	var populatedState string
	err := s.db.QueryRowContext(ctx,
		`SELECT collection_type, populated_state FROM dataset_collection WHERE id = $1`, id).
		Scan(&collection.CollectionType, &populatedState)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %d: %w", id, err)
	}
	collection.Populated = populatedState == "ok"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, element_identifier, hda_id, ldda_id, child_collection_id
		FROM dataset_collection_element
		WHERE dataset_collection_id = $1 ORDER BY element_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load elements of collection %d: %w", id, err)
	}
	type elementRow struct {
		dce                  *DatasetCollectionElement
		hdaID, lddaID, child sql.NullInt64
	}
	var elementRows []elementRow
	for rows.Next() {
		r := elementRow{dce: &DatasetCollectionElement{}}
		if err := rows.Scan(&r.dce.ID, &r.dce.ElementIdentifier, &r.hdaID, &r.lddaID, &r.child); err != nil {
			rows.Close()
			return nil, err
		}
		elementRows = append(elementRows, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range elementRows {
		if err := s.fillElement(ctx, r.dce, r.hdaID, r.lddaID, r.child); err != nil {
			return nil, err
		}
		collection.Elements = append(collection.Elements, r.dce)
	}
	return collection, nil
}

func (s *PGStore) fillElement(ctx context.Context, dce *DatasetCollectionElement, hdaID, lddaID, childID sql.NullInt64) error {
	var err error
	switch {
	case hdaID.Valid:
		dce.HDA, err = s.GetHDA(ctx, hdaID.Int64)
		if dce.HDA != nil {
			dce.HDA.ElementIdentifier = dce.ElementIdentifier
		}
	case lddaID.Valid:
		dce.LDDA, err = s.GetLDDA(ctx, lddaID.Int64)
	case childID.Valid:
		dce.ChildCollection, err = s.loadCollection(ctx, childID.Int64)
	}
	return err
}

func decodeMetadata(raw []byte) *Metadata {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &Metadata{}
	}
	m := &Metadata{Extra: map[string]interface{}{}}
	for k, v := range fields {
		switch k {
		case "columns":
			if n, ok := v.(float64); ok {
				m.Columns = int(n)
			}
		case "column_types":
			m.ColumnTypes = toStrings(v)
		case "column_names":
			m.ColumnNames = toStrings(v)
		default:
			m.Extra[k] = v
		}
	}
	return m
}

func toStrings(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
