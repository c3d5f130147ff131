// Package portal describes the CALPADS web surface: page URLs and the CSS
// selectors used to find controls. The portal owns this markup, so every
// selector here may drift; callers turn a missing control into a
// SelectorTimeout rather than a crash.
package portal

import (
	"net/url"
	"strings"
)

// Selectors used by the workflows.
const (
	LoginReady      = "button.btn.btn-primary"
	LoginUsername   = "#Username"
	LoginPassword   = "#Password"
	LoginAgreement  = "#AgreementConfirmed"
	LoginSubmit     = "button.btn.btn-primary"
	OrgSelect       = `select[id="org-select"]`
	UploadFileType  = `select[name="FilesUploaded[0].FileType"]`
	UploadFileInput = `input[type="file"]`
	UploadJobName   = `input[name="FilesUploaded[0].JobName"]`
	UploadSubmit    = `button[value="Upload"]`

	ValidationErrors = ".validation-summary-errors"

	ExtractStartDate     = `input[name='EffectiveStartDate']`
	ExtractEndDate       = `input[name='EffectiveEndDate']`
	ExtractMoveAll       = `button[title='Move all']`
	ExtractFileName      = `input[name='ExtractFileName']`
	ExtractFileNameAlt   = `input[name='FileName']`
	ExtractRequestSubmit = `button[value='Request']`
	ExtractDownloadLink  = `a[class="btn btn-default"]`

	ReportFrame      = "iframe"
	ReportParam      = "#ReportViewer1_ctl08_ctl07_ddValue"
	ReportParamValue = "1"
	ReportView       = "#ReportViewer1_ctl08_ctl00"
	ReportAsyncWait  = "#ReportViewer1_AsyncWait"
)

// Surface is the set of portal URLs. Paths are joined onto BaseURL.
type Surface struct {
	BaseURL     string            `yaml:"base_url"`
	UploadPath  string            `yaml:"upload_path"`
	ExtractPath string            `yaml:"extract_path"`
	ExtractList string            `yaml:"extract_list_path"`
	LoginMarker string            `yaml:"login_marker"`
	Reports     map[string]string `yaml:"reports"`
}

// DefaultSurface returns the production portal surface.
func DefaultSurface() Surface {
	return Surface{
		BaseURL:     "https://www.calpads.org",
		UploadPath:  "/FileSubmission/FileUpload",
		ExtractPath: "/Extract/ODSExtract",
		ExtractList: "/Extract",
		LoginMarker: "/Account/Login",
		Reports: map[string]string{
			"snapshot_1_17": "/Report/Snapshot/1_17_FRPM_EnglishLearnerFosterYouthCount",
			"snapshot_1_2":  "/Report/Snapshot/1_2_EnrollmentPrimaryStatusStudentList",
			"snapshot_1_18": "/Report/Snapshot/1_18_FPRM_EnglishLearnerFosterYouthStudentList",
		},
	}
}

// Root is the portal landing page.
func (s Surface) Root() string {
	return strings.TrimRight(s.BaseURL, "/")
}

func (s Surface) join(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.Root() + "/" + strings.TrimLeft(path, "/")
}

// UploadURL is the file submission page.
func (s Surface) UploadURL() string {
	return s.join(s.UploadPath)
}

// ExtractRequestURL is the ODS extract request page for reportType.
func (s Surface) ExtractRequestURL(reportType string) string {
	return s.join(s.ExtractPath) + "?RecordType=" + url.QueryEscape(reportType)
}

// ExtractListURL is the page listing generated extracts.
func (s Surface) ExtractListURL() string {
	return s.join(s.ExtractList)
}

// ReportURL resolves a named report, a relative path, or an absolute URL.
func (s Surface) ReportURL(nameOrURL string) string {
	if p, ok := s.Reports[nameOrURL]; ok {
		return s.join(p)
	}
	return s.join(nameOrURL)
}

// IsLoginPage reports whether pageURL is the login page, which an
// authenticated request only lands on after the session expired.
func (s Surface) IsLoginPage(pageURL string) bool {
	return s.LoginMarker != "" && strings.Contains(pageURL, s.LoginMarker)
}
