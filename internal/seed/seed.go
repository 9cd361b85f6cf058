package seed

import (
	"context"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/repository"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/utils"
)

// 坐标为各个 UPAE 所在城市的大致位置
//
//go:embed data/upae.csv
var upaeCSV string

var requiredHeaders = []string{"nome", "municipio", "endereco", "lat", "lon", "especialidades", "transporte", "espera_dias"}

func parseFloat(record map[string]string, key string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(record[key]), 64)
	if err != nil {
		return 0, fmt.Errorf("%s 列格式错误: %w", key, err)
	}
	return v, nil
}

// ParseFacilities 从 CSV 中读取机构列表，专科之间用分号分隔
func ParseFacilities(r io.Reader) ([]*domain.Facility, error) {
	reader := csv.NewReader(r)

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	for _, required := range requiredHeaders {
		found := false
		for _, header := range headers {
			if strings.TrimSpace(header) == required {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("没有找到 %s 列", required)
		}
	}

	facilities := make([]*domain.Facility, 0)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("读取第 %d 行失败: %w", line, err)
		}

		record := make(map[string]string)
		for i, value := range row {
			record[strings.TrimSpace(headers[i])] = value
		}

		facility := &domain.Facility{
			Name:         strings.TrimSpace(record["nome"]),
			Municipality: strings.TrimSpace(record["municipio"]),
			Address:      strings.TrimSpace(record["endereco"]),
			Specialties:  domain.NormalizeSpecialties(strings.Split(record["especialidades"], ";")),
		}
		if facility.Latitude, err = parseFloat(record, "lat"); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		if facility.Longitude, err = parseFloat(record, "lon"); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		if facility.TransportScore, err = parseFloat(record, "transporte"); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		if facility.WaitDays, err = parseFloat(record, "espera_dias"); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}

		if err := utils.ValidateFacility(facility); err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}

		facilities = append(facilities, facility)
	}

	return facilities, nil
}

// SeedRealData 插入内置的 UPAE 列表，已经存在的机构会被跳过
func SeedRealData(ctx context.Context, r *repository.Repository) {
	facilities, err := ParseFacilities(strings.NewReader(upaeCSV))
	if err != nil {
		slog.Error("解析 UPAE 列表失败", "error", err)
		return
	}

	cnt := 0
	for _, facility := range facilities {
		if err := r.CreateFacility(ctx, facility); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.ConstraintName == "facilities_name_key" {
				slog.Info("机构已存在", "name", facility.Name)
				continue
			}
			slog.Error("插入机构失败", "name", facility.Name, "error", err)
			continue
		}
		cnt++
	}

	slog.Info("插入 UPAE 成功", "count", cnt, "total", len(facilities))
}
