package notificationRepo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildListFilter_UserSeesOwnAndGlobal(t *testing.T) {
	got := buildListFilter(ListFilter{UserID: "u1", Limit: 50})
	assert.Equal(t, bson.M{"userId": bson.M{"$in": bson.A{"u1", nil}}}, got)
}

func TestBuildListFilter_AnonymousSeesGlobalOnly(t *testing.T) {
	got := buildListFilter(ListFilter{})
	assert.Equal(t, bson.M{"userId": nil}, got)
}

func TestBuildListFilter_AdminSeesEverything(t *testing.T) {
	got := buildListFilter(ListFilter{UserID: "ignored", AllUsers: true})
	assert.Empty(t, got)
}

func TestRowFilter_ScopedToCaller(t *testing.T) {
	got := rowFilter("u1", "n1")
	assert.Equal(t, bson.M{
		"id":     "n1",
		"userId": bson.M{"$in": bson.A{"u1", nil}},
	}, got)

	assert.Equal(t, bson.M{"id": "n1", "userId": nil}, rowFilter("", "n1"))
}
