package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-engine/internal/directory"
	"alert-engine/internal/logging"
	"alert-engine/internal/models"
)

var asOf = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func testDirectory() *directory.Memory {
	return directory.NewMemory(
		directory.Recipient{
			ID: "r1", Name: "Asha One", Roles: []models.Role{models.RoleAshaWorker},
			VillageID: "V1", BlockID: "B1", DistrictID: "D1", StateID: "S1",
			Age: 34, Gender: "female",
			Channels: []models.Channel{models.ChannelSMS, models.ChannelPush},
		},
		directory.Recipient{
			ID: "r2", Name: "Volunteer Two", Roles: []models.Role{models.RoleVolunteer},
			VillageID: "V1", BlockID: "B1", DistrictID: "D1", StateID: "S1",
			Age: 61, Gender: "male",
			Channels: []models.Channel{models.ChannelSMS},
		},
		directory.Recipient{
			ID: "r3", Name: "Official Three", Roles: []models.Role{models.RoleHealthOfficial},
			VillageID: "V2", BlockID: "B1", DistrictID: "D1", StateID: "S1",
			Age: 45, Gender: "female", Specializations: []string{"cardiology"},
			Channels: []models.Channel{models.ChannelEmail, models.ChannelVoice},
		},
	)
}

func TestResolveIndividualReportsUnresolved(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())
	res, err := r.Resolve(context.Background(), models.TargetSpec{
		Type:       models.TargetIndividual,
		Individual: &models.IndividualTarget{RecipientIDs: []string{"r1", "ghost", "r3"}},
	}, []models.Channel{models.ChannelSMS, models.ChannelEmail}, asOf)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r3"}, res.IDs())
	assert.Equal(t, []string{"ghost"}, res.Unresolved)
}

func TestResolveDeduplicatesAcrossCriteria(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())

	// r1 matches both by id and by village; it must appear once.
	res, err := r.Resolve(context.Background(), models.TargetSpec{
		Type:       models.TargetGeographic,
		Geographic: &models.GeoTarget{AreaType: models.AreaVillage, AreaIDs: []string{"V1", "V1"}},
	}, []models.Channel{models.ChannelSMS}, asOf)
	require.NoError(t, err)

	assert.Equal(t, []string{"r1", "r2"}, res.IDs())
	assert.Len(t, res.Recipients["r1"].Channels, 1)
}

func TestResolveGeographicRoleFilter(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())
	res, err := r.Resolve(context.Background(), models.TargetSpec{
		Type: models.TargetGeographic,
		Geographic: &models.GeoTarget{
			AreaType:     models.AreaBlock,
			AreaIDs:      []string{"B1"},
			IncludeRoles: []models.Role{models.RoleHealthOfficial},
		},
	}, []models.Channel{models.ChannelEmail}, asOf)
	require.NoError(t, err)

	assert.Equal(t, []string{"r3"}, res.IDs())
}

func TestResolveIntersectsChannels(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())
	res, err := r.Resolve(context.Background(), models.TargetSpec{
		Type:       models.TargetIndividual,
		Individual: &models.IndividualTarget{RecipientIDs: []string{"r1"}},
	}, []models.Channel{models.ChannelSMS, models.ChannelEmail, models.ChannelPush}, asOf)
	require.NoError(t, err)

	assert.Equal(t, []models.Channel{models.ChannelSMS, models.ChannelPush}, res.Recipients["r1"].Channels)
}

func TestResolveCustomCriteria(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())
	min := 40
	res, err := r.Resolve(context.Background(), models.TargetSpec{
		Type:   models.TargetCustom,
		Custom: &models.CustomTarget{AgeMin: &min, Gender: "female"},
	}, []models.Channel{models.ChannelEmail}, asOf)
	require.NoError(t, err)

	assert.Equal(t, []string{"r3"}, res.IDs())
}

func TestResolveRejectsInvalidSpec(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())
	_, err := r.Resolve(context.Background(), models.TargetSpec{Type: models.TargetIndividual},
		[]models.Channel{models.ChannelSMS}, asOf)
	require.Error(t, err)
}

func TestResolveIsDeterministic(t *testing.T) {
	r := New(testDirectory(), logging.NewNop())
	spec := models.TargetSpec{
		Type:       models.TargetGeographic,
		Geographic: &models.GeoTarget{AreaType: models.AreaDistrict, AreaIDs: []string{"D1"}},
	}

	first, err := r.Resolve(context.Background(), spec, []models.Channel{models.ChannelSMS}, asOf)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), spec, []models.Channel{models.ChannelSMS}, asOf)
		require.NoError(t, err)
		assert.Equal(t, first.IDs(), again.IDs())
	}
}
