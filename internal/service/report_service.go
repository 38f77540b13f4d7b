package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-assessments/internal/dto"
	"github.com/noah-isme/sma-adp-assessments/internal/models"
	"github.com/noah-isme/sma-adp-assessments/pkg/cache"
	appErrors "github.com/noah-isme/sma-adp-assessments/pkg/errors"
	"github.com/noah-isme/sma-adp-assessments/pkg/export"
)

// Export formats.
const (
	ExportCSV  = "csv"
	ExportPDF  = "pdf"
	ExportXLSX = "xlsx"
)

type reportRepository interface {
	PairData(ctx context.Context, semesterID, classID, subjectID string) (*models.ReportData, error)
}

// ReportService aggregates completed results into class, assessment and
// student reports and renders exports.
type ReportService struct {
	repo    reportRepository
	access  *AccessService
	cache   *CacheService
	metrics *MetricsService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	xlsx    *export.XLSXExporter
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(repo reportRepository, access *AccessService, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:    repo,
		access:  access,
		cache:   cache,
		metrics: metrics,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		xlsx:    export.NewXLSXExporter(),
		logger:  logger,
		now:     time.Now,
	}
}

// View builds the reports page for a selection. Without a class and subject it
// only lists the teacher's pairs.
func (s *ReportService) View(ctx context.Context, scope models.TeacherScope, q dto.ReportQuery) (*models.ReportView, error) {
	pairs, err := s.access.Pairs(ctx, scope, scope.SemesterID)
	if err != nil {
		return nil, err
	}
	view := &models.ReportView{Type: reportType(q.ReportType), Pairs: pairs}
	if q.ClassID == "" || q.SubjectID == "" {
		return view, nil
	}
	pair, err := s.pair(ctx, scope, q.ClassID, q.SubjectID)
	if err != nil {
		return nil, err
	}
	view.Pair = pair

	data, err := s.load(ctx, scope, q.ClassID, q.SubjectID)
	if err != nil {
		return nil, err
	}
	view.Students = data.Students
	view.Choices = data.Assessments

	switch view.Type {
	case models.ReportTypeAssessment:
		if q.AssessmentID == "" {
			return view, nil
		}
		report, err := BuildAssessmentReport(*pair, data, q.AssessmentID)
		if err != nil {
			return nil, err
		}
		view.Assessment = report
	case models.ReportTypeStudent:
		if q.StudentID == "" {
			return view, nil
		}
		report, err := BuildStudentReport(*pair, data, q.StudentID)
		if err != nil {
			return nil, err
		}
		view.Student = report
	default:
		report, err := s.ClassReport(ctx, scope, q.ClassID, q.SubjectID)
		if err != nil {
			return nil, err
		}
		view.Class = report
	}
	return view, nil
}

// ClassReport returns the student x assessment matrix, served from the report
// cache when enabled.
func (s *ReportService) ClassReport(ctx context.Context, scope models.TeacherScope, classID, subjectID string) (*models.ClassReport, error) {
	if classID == "" || subjectID == "" {
		return nil, invalid("Please select a class and subject.")
	}
	pair, err := s.pair(ctx, scope, classID, subjectID)
	if err != nil {
		return nil, err
	}
	key := cache.ReportKey(scope.TeacherID, scope.SemesterID, classID, subjectID)
	return cachedLoad(ctx, s.cache, key, func() (*models.ClassReport, error) {
		data, err := s.load(ctx, scope, classID, subjectID)
		if err != nil {
			return nil, err
		}
		report := BuildClassReport(*pair, scope.SemesterID, data)
		report.GeneratedAt = s.now().UTC()
		return report, nil
	})
}

// ReportExport is a rendered-on-write export of a class report.
type ReportExport struct {
	Format      string
	Filename    string
	ContentType string
	Title       string
	Subtitle    string
	Dataset     export.Dataset

	service *ReportService
}

// Export prepares the class report of q for download in q.Export format.
func (s *ReportService) Export(ctx context.Context, scope models.TeacherScope, q dto.ReportQuery) (*ReportExport, error) {
	format := strings.ToLower(strings.TrimSpace(q.Export))
	contentType := ""
	switch format {
	case ExportCSV:
		contentType = "text/csv; charset=utf-8"
	case ExportPDF:
		contentType = "application/pdf"
	case ExportXLSX:
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return nil, invalid("Unsupported export format.")
	}
	report, err := s.ClassReport(ctx, scope, q.ClassID, q.SubjectID)
	if err != nil {
		return nil, err
	}
	return &ReportExport{
		Format:      format,
		Filename:    export.Filename(format, report.Pair.ClassName, report.Pair.SubjectName, "results"),
		ContentType: contentType,
		Title:       "Results: " + report.Pair.Label(),
		Subtitle:    fmt.Sprintf("Generated %s", report.GeneratedAt.Format("2006-01-02 15:04")),
		Dataset:     ClassReportDataset(report),
		service:     s,
	}, nil
}

// WriteTo renders the export into w. CSV rows are streamed.
func (e *ReportExport) WriteTo(w io.Writer) (int64, error) {
	var (
		data []byte
		err  error
	)
	switch e.Format {
	case ExportCSV:
		cw := &countingWriter{w: w}
		if err := e.service.csv.Stream(cw, e.Dataset); err != nil {
			return cw.n, err
		}
		e.service.metrics.RecordExport(e.Format)
		return cw.n, nil
	case ExportPDF:
		data, err = e.service.pdf.Render(e.Dataset, e.Title, e.Subtitle)
	case ExportXLSX:
		data, err = e.service.xlsx.Render(e.Dataset)
	default:
		return 0, fmt.Errorf("unsupported export format %q", e.Format)
	}
	if err != nil {
		return 0, err
	}
	e.service.metrics.RecordExport(e.Format)
	return io.Copy(w, bytes.NewReader(data))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (s *ReportService) pair(ctx context.Context, scope models.TeacherScope, classID, subjectID string) (*models.ClassSubjectPair, error) {
	pairs, err := s.access.Pairs(ctx, scope, scope.SemesterID)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.ClassID == classID && p.SubjectID == subjectID {
			pair := p
			return &pair, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "You are not assigned to this class and subject.")
}

func (s *ReportService) load(ctx context.Context, scope models.TeacherScope, classID, subjectID string) (*models.ReportData, error) {
	data, err := s.repo.PairData(ctx, scope.SemesterID, classID, subjectID)
	if err != nil {
		s.logger.Error("load report data", zap.String("class_id", classID), zap.String("subject_id", subjectID), zap.Error(err))
		return nil, appErrors.Internal(err, "failed to load report data")
	}
	return data, nil
}

func reportType(raw string) string {
	switch raw {
	case models.ReportTypeAssessment, models.ReportTypeStudent:
		return raw
	}
	return models.ReportClass
}

type resultKey struct {
	assessmentID string
	studentID    string
}

func indexResults(results []models.ReportResult) map[resultKey]models.ReportResult {
	idx := make(map[resultKey]models.ReportResult, len(results))
	for _, r := range results {
		idx[resultKey{r.AssessmentID, r.StudentID}] = r
	}
	return idx
}

// BuildClassReport aggregates data into the class matrix. A student's average is
// points earned over points possible across the assessments they have a
// completed result for; assessments without any questions do not count.
func BuildClassReport(pair models.ClassSubjectPair, semesterID string, data *models.ReportData) *models.ClassReport {
	report := &models.ClassReport{
		Pair:        pair,
		SemesterID:  semesterID,
		Assessments: data.Assessments,
		Rows:        make([]models.StudentReportRow, 0, len(data.Students)),
	}
	if report.Assessments == nil {
		report.Assessments = []models.ReportAssessment{}
	}
	seenType := map[string]bool{}
	for _, a := range data.Assessments {
		if !seenType[a.TypeName] {
			seenType[a.TypeName] = true
			report.TypeNames = append(report.TypeNames, a.TypeName)
		}
	}

	results := indexResults(data.Results)
	var averages []float64
	for _, st := range data.Students {
		row := models.StudentReportRow{
			StudentID:    st.ID,
			StudentName:  st.FullName,
			NIS:          st.NIS,
			Scores:       make([]*float64, len(data.Assessments)),
			TypeAverages: make(map[string]*float64, len(report.TypeNames)),
		}
		typeEarned := map[string]float64{}
		typePossible := map[string]float64{}
		for i, a := range data.Assessments {
			r, ok := results[resultKey{a.ID, st.ID}]
			if !ok {
				continue
			}
			score := r.Score
			row.Scores[i] = &score
			if a.TotalMaxScore <= 0 {
				continue
			}
			row.TotalScore += score
			row.TotalPossible += a.TotalMaxScore
			typeEarned[a.TypeName] += score
			typePossible[a.TypeName] += a.TotalMaxScore
		}
		row.Average = percentage(row.TotalScore, row.TotalPossible)
		for _, name := range report.TypeNames {
			row.TypeAverages[name] = percentage(typeEarned[name], typePossible[name])
		}
		if row.Average != nil {
			averages = append(averages, *row.Average)
		}
		report.Rows = append(report.Rows, row)
	}

	report.Statistics = models.ClassStatistics{StudentCount: len(data.Students), GradedCount: len(averages)}
	if len(averages) > 0 {
		mean, lo, hi := summarize(averages)
		report.Statistics.ClassAverage = &mean
		report.Statistics.Lowest = &lo
		report.Statistics.Highest = &hi
	}
	return report
}

// BuildAssessmentReport lists every student's outcome on one assessment.
func BuildAssessmentReport(pair models.ClassSubjectPair, data *models.ReportData, assessmentID string) (*models.AssessmentReport, error) {
	var assessment *models.ReportAssessment
	for i := range data.Assessments {
		if data.Assessments[i].ID == assessmentID {
			assessment = &data.Assessments[i]
			break
		}
	}
	if assessment == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Assessment not found for this class.")
	}

	results := indexResults(data.Results)
	report := &models.AssessmentReport{
		Pair:       pair,
		Assessment: *assessment,
		Rows:       make([]models.AssessmentReportRow, 0, len(data.Students)),
		RosterSize: len(data.Students),
	}
	var scores []float64
	for _, st := range data.Students {
		row := models.AssessmentReportRow{StudentID: st.ID, StudentName: st.FullName, NIS: st.NIS}
		if r, ok := results[resultKey{assessment.ID, st.ID}]; ok {
			score := r.Score
			row.Score = &score
			row.Feedback = r.Feedback
			row.Percentage = percentage(score, assessment.TotalMaxScore)
			scores = append(scores, score)
		}
		report.Rows = append(report.Rows, row)
	}
	report.Submitted = len(scores)
	if len(scores) > 0 {
		mean, lo, hi := summarize(scores)
		report.Mean = &mean
		report.Min = &lo
		report.Max = &hi
	}
	return report, nil
}

// BuildStudentReport lists one student's results across the pair's assessments.
func BuildStudentReport(pair models.ClassSubjectPair, data *models.ReportData, studentID string) (*models.StudentReport, error) {
	var student *models.ReportStudent
	for i := range data.Students {
		if data.Students[i].ID == studentID {
			student = &data.Students[i]
			break
		}
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found in this class.")
	}

	results := indexResults(data.Results)
	report := &models.StudentReport{
		Pair:    pair,
		Student: *student,
		Rows:    make([]models.StudentAssessmentRow, 0, len(data.Assessments)),
	}
	var earned, possible float64
	for _, a := range data.Assessments {
		row := models.StudentAssessmentRow{Assessment: a}
		if r, ok := results[resultKey{a.ID, student.ID}]; ok {
			score := r.Score
			row.Score = &score
			row.Feedback = r.Feedback
			row.Percentage = percentage(score, a.TotalMaxScore)
			if a.TotalMaxScore > 0 {
				earned += score
				possible += a.TotalMaxScore
			}
		}
		report.Rows = append(report.Rows, row)
	}
	report.Average = percentage(earned, possible)
	return report, nil
}

// ClassReportDataset flattens a class report into export rows. Missing results
// render as "N/A".
func ClassReportDataset(report *models.ClassReport) export.Dataset {
	headers := []string{"No", "NIS", "Student"}
	columns := make([]string, len(report.Assessments))
	used := map[string]int{}
	for i, a := range report.Assessments {
		title := a.Title
		used[title]++
		if used[title] > 1 {
			title = fmt.Sprintf("%s (%d)", title, used[title])
		}
		columns[i] = title
		headers = append(headers, title)
	}
	typeColumns := make([]string, len(report.TypeNames))
	for i, name := range report.TypeNames {
		typeColumns[i] = name + " %"
		headers = append(headers, typeColumns[i])
	}
	headers = append(headers, "Total", "Possible", "Average %")

	rows := make([]map[string]string, 0, len(report.Rows))
	for i, r := range report.Rows {
		row := map[string]string{
			"No":        fmt.Sprintf("%d", i+1),
			"NIS":       r.NIS,
			"Student":   r.StudentName,
			"Total":     formatScore(r.TotalScore),
			"Possible":  formatScore(r.TotalPossible),
			"Average %": formatOptional(r.Average),
		}
		for j, col := range columns {
			row[col] = formatOptional(r.Scores[j])
		}
		for j, name := range report.TypeNames {
			row[typeColumns[j]] = formatOptional(r.TypeAverages[name])
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func percentage(earned, possible float64) *float64 {
	if possible <= 0 {
		return nil
	}
	v := round2(earned / possible * 100)
	return &v
}

func summarize(values []float64) (mean, lo, hi float64) {
	lo, hi = values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return round2(sum / float64(len(values))), lo, hi
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return formatScore(*v)
}
