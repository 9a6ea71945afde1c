package service

import (
	"database/sql"
	"sort"

	"github.com/jjenkins/tenders/internal/model"
)

// Changeset is the minimal set of writes needed to bring the store up to date
type Changeset struct {
	Insert    []model.Listing // code not yet stored
	Upsert    []model.Listing // code stored with a different status, ordered by code
	Unchanged int
}

// Reconcile classifies clean listings against the stored status of each code.
// Listings whose code is stored with the same status produce no write.
func Reconcile(clean []model.Listing, stored map[string]sql.NullInt64) Changeset {
	var cs Changeset

	for _, l := range clean {
		current, exists := stored[l.Code()]
		switch {
		case !exists:
			cs.Insert = append(cs.Insert, l)
		case !current.Valid || current.Int64 != l.StatusCode.Int64:
			cs.Upsert = append(cs.Upsert, l)
		default:
			cs.Unchanged++
		}
	}

	sort.SliceStable(cs.Upsert, func(i, j int) bool {
		return cs.Upsert[i].Code() < cs.Upsert[j].Code()
	})

	return cs
}
