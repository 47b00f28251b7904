package tenancy

import (
	"errors"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/VellumResearchLab/vellum/internal/users"
)

type scopedRecord struct {
	ID      string  `gorm:"column:id;primaryKey;size:190"`
	OwnerID *string `gorm:"column:owner_id;size:190;index"`
	Label   string  `gorm:"column:label;size:190"`
}

func (scopedRecord) TableName() string {
	return "scoped_records"
}

func ownerRef(id string) *string {
	return &id
}

func seededDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&scopedRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	records := []scopedRecord{
		{ID: "a-1", OwnerID: ownerRef("user-a"), Label: "alpha"},
		{ID: "a-2", OwnerID: ownerRef("user-a"), Label: "beta"},
		{ID: "b-1", OwnerID: ownerRef("user-b"), Label: "gamma"},
		{ID: "orphan-1", OwnerID: nil, Label: "orphan"},
	}
	if err := db.Create(&records).Error; err != nil {
		t.Fatalf("failed to seed records: %v", err)
	}
	return db
}

func TestScopeFiltersToOwnerForRegularUsers(t *testing.T) {
	db := seededDatabase(t)
	identity := Identity{UserID: "user-a", Role: users.RoleUser}

	var visible []scopedRecord
	if err := Scope(db.Model(&scopedRecord{}), identity).Find(&visible).Error; err != nil {
		t.Fatalf("scoped query failed: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 records for user-a, got %d", len(visible))
	}
	for _, record := range visible {
		if record.OwnerID == nil || *record.OwnerID != "user-a" {
			t.Fatalf("scoped query leaked record %+v", record)
		}
	}
}

func TestScopeHidesOrphansFromRegularUsers(t *testing.T) {
	db := seededDatabase(t)
	identity := Identity{UserID: "user-b", Role: users.RoleUser}

	var visible []scopedRecord
	if err := Scope(db.Model(&scopedRecord{}), identity).Find(&visible).Error; err != nil {
		t.Fatalf("scoped query failed: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != "b-1" {
		t.Fatalf("expected only b-1 for user-b, got %+v", visible)
	}
}

func TestScopeLeavesAdminQueriesUnfiltered(t *testing.T) {
	db := seededDatabase(t)
	identity := Identity{UserID: "admin-1", Role: users.RoleAdmin}

	var visible []scopedRecord
	if err := Scope(db.Model(&scopedRecord{}), identity).Find(&visible).Error; err != nil {
		t.Fatalf("scoped query failed: %v", err)
	}
	if len(visible) != 4 {
		t.Fatalf("expected admin to see all 4 records, got %d", len(visible))
	}
}

func TestAuthorizeWrite(t *testing.T) {
	cases := []struct {
		name     string
		owner    *string
		identity Identity
		wantErr  error
	}{
		{name: "owner may write", owner: ownerRef("user-a"), identity: Identity{UserID: "user-a", Role: users.RoleUser}},
		{name: "other user forbidden", owner: ownerRef("user-a"), identity: Identity{UserID: "user-b", Role: users.RoleUser}, wantErr: ErrForbidden},
		{name: "orphan forbidden to users", owner: nil, identity: Identity{UserID: "user-a", Role: users.RoleUser}, wantErr: ErrForbidden},
		{name: "admin may write anything", owner: ownerRef("user-a"), identity: Identity{UserID: "admin-1", Role: users.RoleAdmin}},
		{name: "admin may write orphans", owner: nil, identity: Identity{UserID: "admin-1", Role: users.RoleAdmin}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			err := AuthorizeWrite(testCase.owner, testCase.identity)
			if !errors.Is(err, testCase.wantErr) {
				t.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestOwnerForStampsCallerIdentity(t *testing.T) {
	owner := OwnerFor(Identity{UserID: "user-a", Role: users.RoleUser})
	if owner == nil || *owner != "user-a" {
		t.Fatalf("expected owner ref for user-a, got %v", owner)
	}
}
