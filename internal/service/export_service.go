package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
)

// ExportFormat enumerates supported timetable downloads.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

var exportContentTypes = map[ExportFormat]string{
	ExportFormatCSV:  "text/csv",
	ExportFormatPDF:  "application/pdf",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Columns of a rendered timetable.
var scheduleHeaders = []string{"Group", "Day", "Lesson", "Start", "End", "Subject", "Teacher", "Classroom"}

// ParseExportFormat accepts csv, pdf or xlsx in any case. Empty means csv.
func ParseExportFormat(raw string) (ExportFormat, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(raw)))
	if format == "" {
		return ExportFormatCSV, nil
	}
	if _, ok := exportContentTypes[format]; !ok {
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
	return format, nil
}

// ExportResult is a rendered download.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
}

type scheduleLister interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleSlot, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

// ExportService renders the stored timetable as CSV, PDF or XLSX.
type ExportService struct {
	slots   scheduleLister
	catalog catalogReader
	csv     csvRenderer
	pdf     pdfRenderer
	xlsx    xlsxRenderer
	logger  *zap.Logger
	now     func() time.Time
}

// NewExportService constructs an ExportService. catalog is optional and only used to print names.
func NewExportService(slots scheduleLister, catalog catalogReader, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, xlsx xlsxRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{
		slots:   slots,
		catalog: catalog,
		csv:     csv,
		pdf:     pdf,
		xlsx:    xlsx,
		logger:  logger,
		now:     time.Now,
	}
}

// Export renders stored slots matching the query.
func (s *ExportService) Export(ctx context.Context, query dto.ExportQuery) (*ExportResult, error) {
	format, err := ParseExportFormat(query.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	filter, err := query.Filter()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	slots, err := s.slots.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedule")
	}

	var names scheduler.Input
	if s.catalog != nil {
		if names, err = s.catalog.Snapshot(ctx); err != nil {
			s.logger.Warn("export falls back to ids, catalog unavailable", zap.Error(err))
			names = scheduler.Input{}
		}
	}

	data, err := s.Render(format, ScheduleDataset(names, slots), "Timetable")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable")
	}
	return &ExportResult{
		Filename:    buildFilename(filter, format, s.now()),
		ContentType: exportContentTypes[format],
		Data:        data,
	}, nil
}

// Render encodes a dataset in the given format.
func (s *ExportService) Render(format ExportFormat, data export.Dataset, title string) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return s.csv.Render(data)
	case ExportFormatPDF:
		return s.pdf.Render(data, title)
	case ExportFormatXLSX:
		return s.xlsx.Render(data, title)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// ScheduleDataset lays slots out as rows ordered by group, day and lesson. Entities found in
// names are printed by name, anything else by id.
func ScheduleDataset(names scheduler.Input, slots []models.ScheduleSlot) export.Dataset {
	groups := map[string]string{}
	for _, g := range names.ClassGroups {
		groups[g.ID] = g.Name
	}
	subjects := map[string]string{}
	for _, sub := range names.Subjects {
		subjects[sub.ID] = sub.Name
	}
	teachers := map[string]string{}
	for _, t := range names.Teachers {
		teachers[t.ID] = t.FullName()
	}
	rooms := map[string]string{}
	for _, r := range names.Classrooms {
		rooms[r.ID] = r.Number
	}

	ordered := make([]models.ScheduleSlot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ClassGroupID != b.ClassGroupID {
			return a.ClassGroupID < b.ClassGroupID
		}
		if da, db := weekdayIndex(a.Day), weekdayIndex(b.Day); da != db {
			return da < db
		}
		return a.LessonNumber < b.LessonNumber
	})

	rows := make([]map[string]string, 0, len(ordered))
	for _, slot := range ordered {
		rows = append(rows, map[string]string{
			"Group":     lookup(groups, slot.ClassGroupID),
			"Day":       slot.Day,
			"Lesson":    strconv.Itoa(slot.LessonNumber),
			"Start":     slot.StartTime,
			"End":       slot.EndTime,
			"Subject":   lookup(subjects, slot.SubjectID),
			"Teacher":   lookup(teachers, slot.TeacherID),
			"Classroom": lookup(rooms, slot.ClassroomID),
		})
	}
	return export.Dataset{Headers: scheduleHeaders, Rows: rows}
}

func lookup(names map[string]string, id string) string {
	if name := strings.TrimSpace(names[id]); name != "" {
		return name
	}
	return id
}

func weekdayIndex(day string) int {
	for i, d := range models.CanonicalWeek {
		if d == day {
			return i
		}
	}
	return len(models.CanonicalWeek)
}

func buildFilename(filter models.ScheduleFilter, format ExportFormat, now time.Time) string {
	scope := "all"
	switch {
	case filter.ClassGroupID != "":
		scope = "group-" + sanitizeFilename(filter.ClassGroupID)
	case filter.TeacherID != "":
		scope = "teacher-" + sanitizeFilename(filter.TeacherID)
	case filter.ClassroomID != "":
		scope = "room-" + sanitizeFilename(filter.ClassroomID)
	}
	return fmt.Sprintf("timetable_%s_%s.%s", scope, now.UTC().Format("20060102_150405"), format)
}

func sanitizeFilename(raw string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
