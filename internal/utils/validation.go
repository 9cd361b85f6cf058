package utils

import (
	"errors"
	"fmt"
	"math"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func validateCoordinate(latitude, longitude float64) error {
	if math.IsNaN(latitude) || latitude < -90 || latitude > 90 {
		return fmt.Errorf("纬度 %v 不在 [-90, 90] 范围内", latitude)
	}
	if math.IsNaN(longitude) || longitude < -180 || longitude > 180 {
		return fmt.Errorf("经度 %v 不在 [-180, 180] 范围内", longitude)
	}
	return nil
}

// ValidatePatient 会顺便把专科名称规范化
func ValidatePatient(patient *domain.Patient) error {
	if err := validateCoordinate(patient.Latitude, patient.Longitude); err != nil {
		return err
	}

	patient.Specialty = domain.NormalizeSpecialty(string(patient.Specialty))
	if patient.Specialty == "" {
		return errors.New("患者的专科不能为空")
	}

	return nil
}

// ApplyFacilityDefaults 在请求没有提供交通评分或等待天数时使用默认值
func ApplyFacilityDefaults(facility *domain.Facility, transportScore, waitDays *float64) {
	facility.TransportScore = domain.DefaultTransportScore
	if transportScore != nil {
		facility.TransportScore = *transportScore
	}
	facility.WaitDays = domain.DefaultWaitDays
	if waitDays != nil {
		facility.WaitDays = *waitDays
	}
}

// ValidateFacility 会顺便把专科名称规范化并去重
func ValidateFacility(facility *domain.Facility) error {
	if err := validateCoordinate(facility.Latitude, facility.Longitude); err != nil {
		return err
	}

	specialties := make([]string, len(facility.Specialties))
	for i, sp := range facility.Specialties {
		specialties[i] = string(sp)
	}
	facility.Specialties = domain.NormalizeSpecialties(specialties)
	if len(facility.Specialties) == 0 {
		return errors.New("机构至少需要提供一个专科")
	}

	if math.IsNaN(facility.TransportScore) || facility.TransportScore < 0 || facility.TransportScore > 1 {
		return fmt.Errorf("交通评分 %v 不在 [0, 1] 范围内", facility.TransportScore)
	}
	if math.IsNaN(facility.WaitDays) || facility.WaitDays < 0 {
		return fmt.Errorf("等待天数 %v 不能小于 0", facility.WaitDays)
	}

	return nil
}
