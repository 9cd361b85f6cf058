package allocator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func newPatient(id int64, lat, lon float64, specialty string) *domain.Patient {
	return &domain.Patient{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Specialty: domain.NormalizeSpecialty(specialty),
		Status:    domain.PatientStatusWaiting,
	}
}

func newFacility(id int64, lat, lon, waitDays float64, specialties ...string) *domain.Facility {
	return &domain.Facility{
		ID:             id,
		Latitude:       lat,
		Longitude:      lon,
		Specialties:    domain.NormalizeSpecialties(specialties),
		TransportScore: domain.DefaultTransportScore,
		WaitDays:       waitDays,
	}
}

func newTestAllocator(t *testing.T, parameters Parameters, patients []*domain.Patient, facilities []*domain.Facility, seed int64) *Allocator {
	t.Helper()
	a, err := New(parameters, patients, facilities, WithRand(rand.New(rand.NewSource(seed))))
	require.NoError(t, err)
	return a
}

// 一组位于累西腓附近的机构和患者
func recifeFixture() ([]*domain.Patient, []*domain.Facility) {
	facilities := []*domain.Facility{
		newFacility(1, -8.0476, -34.8770, 12, "cardiologia", "ortopedia"),
		newFacility(2, -8.1130, -35.0147, 3, "cardiologia", "neurologia"),
		newFacility(3, -7.9400, -34.8600, 25, "ortopedia", "psiquiatria"),
		newFacility(4, -8.2830, -35.0330, 7, "neurologia", "cardiologia", "pediatria"),
	}
	patients := []*domain.Patient{
		newPatient(1, -8.0500, -34.9000, "cardiologia"),
		newPatient(2, -8.0100, -34.8700, "ortopedia"),
		newPatient(3, -8.2000, -35.0000, "neurologia"),
		newPatient(4, -7.9500, -34.8500, "psiquiatria"),
		newPatient(5, -8.1000, -34.9500, "pediatria"),
		newPatient(6, -8.0600, -34.8800, "cardiologia"),
		newPatient(7, -8.3000, -35.0500, "ortopedia"),
	}
	return patients, facilities
}
