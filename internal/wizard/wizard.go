// Package wizard implements the interactive configuration flows on top of
// survey prompts. Every flow mutates the passed config in place; the
// caller decides when to save.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/moodlesync/moodlesync/internal/config"
	"github.com/moodlesync/moodlesync/internal/moodle"
)

// LoginFunc trades credentials for a webservice token.
type LoginFunc func(ctx context.Context, baseURL, username, password string) (string, error)

const (
	menuCourses   = "Select courses to sync"
	menuToggles   = "Download options"
	menuPerCourse = "Per-course folder options"
	menuMail      = "Mail notifications"
	menuDone      = "Save and exit"
)

// Configure runs the settings menu until the user picks "Save and exit".
func Configure(ctx context.Context, cfg *config.Config, lister moodle.CourseLister) error {
	for {
		var choice string
		prompt := &survey.Select{
			Message: "What do you want to configure:",
			Options: []string{menuCourses, menuToggles, menuPerCourse, menuMail, menuDone},
		}
		if err := survey.AskOne(prompt, &choice, survey.WithValidator(survey.Required)); err != nil {
			return err
		}

		var err error
		switch choice {
		case menuCourses:
			err = SelectCourses(ctx, cfg, lister)
		case menuToggles:
			err = Toggles(cfg)
		case menuPerCourse:
			err = CourseOptions(ctx, cfg, lister)
		case menuMail:
			err = MailSettings(cfg)
		case menuDone:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

const (
	authCredentials = "Log in with username and password"
	authToken       = "Paste an existing webservice token"
)

// Setup runs the first-time flow: instance address and authentication.
func Setup(ctx context.Context, cfg *config.Config, login LoginFunc) error {
	domain := ""
	domainPrompt := &survey.Input{
		Message: "Moodle domain (e.g. moodle.example.edu):",
		Default: cfg.MoodleDomain,
	}
	if err := survey.AskOne(domainPrompt, &domain, survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	cfg.MoodleDomain = strings.TrimSpace(domain)

	path := ""
	pathPrompt := &survey.Input{
		Message: "Path below the domain:",
		Default: defaultString(cfg.MoodlePath, "/"),
	}
	if err := survey.AskOne(pathPrompt, &path); err != nil {
		return err
	}
	cfg.MoodlePath = strings.TrimSpace(path)

	var method string
	methodPrompt := &survey.Select{
		Message: "How do you want to authenticate:",
		Options: []string{authCredentials, authToken},
	}
	if err := survey.AskOne(methodPrompt, &method, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if method == authToken {
		token := ""
		if err := survey.AskOne(&survey.Password{Message: "Webservice token:"}, &token, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		cfg.Token = strings.TrimSpace(token)
		return nil
	}

	username := ""
	if err := survey.AskOne(&survey.Input{Message: "Username:"}, &username, survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	password := ""
	if err := survey.AskOne(&survey.Password{Message: "Password:"}, &password, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	token, err := login(ctx, cfg.BaseURL(), username, password)
	if err != nil {
		return err
	}
	cfg.Token = token
	return nil
}

// SelectCourses runs the course picker against the live enrollment list.
func SelectCourses(ctx context.Context, cfg *config.Config, lister moodle.CourseLister) error {
	courses, err := lister.UserCourses(ctx)
	if err != nil {
		return err
	}
	if len(courses) == 0 {
		return errors.New("no enrolled courses found")
	}

	labels := make([]string, len(courses))
	for i, c := range courses {
		labels[i] = courseLabel(c.ID, c.FullName)
	}

	var picked []string
	prompt := &survey.MultiSelect{
		Message: "Courses to sync:",
		Options: labels,
		Default: selectedLabels(courses, cfg.DownloadCourseIDs),
	}
	if err := survey.AskOne(prompt, &picked); err != nil {
		return err
	}

	ids := make([]int64, 0, len(picked))
	for _, label := range picked {
		if id, ok := parseCourseID(label); ok {
			ids = append(ids, id)
		}
	}
	// Keeping everything checked means no restriction, so newly enrolled
	// courses come along automatically.
	if len(ids) == len(courses) {
		ids = nil
	}
	cfg.DownloadCourseIDs = ids
	return nil
}

// selectedLabels returns the labels to pre-check: the configured courses,
// or every course when no restriction is set.
func selectedLabels(courses []moodle.CourseSummary, selected []int64) []string {
	if len(selected) == 0 {
		labels := make([]string, len(courses))
		for i, c := range courses {
			labels[i] = courseLabel(c.ID, c.FullName)
		}
		return labels
	}

	want := make(map[int64]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}
	var labels []string
	for _, c := range courses {
		if want[c.ID] {
			labels = append(labels, courseLabel(c.ID, c.FullName))
		}
	}
	return labels
}

// Toggles asks the download category switches.
func Toggles(cfg *config.Config) error {
	asks := []struct {
		message string
		value   *bool
	}{
		{"Download your assignment submissions?", &cfg.DownloadSubmissions},
		{"Save module and section descriptions?", &cfg.DownloadDescriptions},
		{"Download database activity files?", &cfg.DownloadDatabases},
		{"Download files linked in url modules?", &cfg.DownloadLinkedFiles},
	}
	for _, ask := range asks {
		prompt := &survey.Confirm{Message: ask.message, Default: *ask.value}
		if err := survey.AskOne(prompt, ask.value); err != nil {
			return err
		}
	}
	return nil
}

const doneOption = "Done"

// CourseOptions edits per-course directory name and layout overrides.
func CourseOptions(ctx context.Context, cfg *config.Config, lister moodle.CourseLister) error {
	courses, err := lister.UserCourses(ctx)
	if err != nil {
		return err
	}

	options := make([]string, 0, len(courses)+1)
	for _, c := range courses {
		options = append(options, courseLabel(c.ID, c.FullName))
	}
	options = append(options, doneOption)

	for {
		var choice string
		prompt := &survey.Select{Message: "Course to adjust:", Options: options}
		if err := survey.AskOne(prompt, &choice); err != nil {
			return err
		}
		if choice == doneOption {
			return nil
		}

		id, ok := parseCourseID(choice)
		if !ok {
			continue
		}
		fullName := ""
		for _, c := range courses {
			if c.ID == id {
				fullName = c.FullName
			}
		}
		if err := editCourseOption(cfg, id, fullName); err != nil {
			return err
		}
	}
}

func editCourseOption(cfg *config.Config, id int64, fullName string) error {
	current := cfg.CourseOption(id)

	name := ""
	namePrompt := &survey.Input{
		Message: "Directory name:",
		Default: defaultString(current.OverwriteName, fullName),
	}
	if err := survey.AskOne(namePrompt, &name); err != nil {
		return err
	}

	structure := true
	if current.CreateDirStructure != nil {
		structure = *current.CreateDirStructure
	}
	confirm := &survey.Confirm{
		Message: "Create section and module subdirectories?",
		Default: structure,
	}
	if err := survey.AskOne(confirm, &structure); err != nil {
		return err
	}

	opt := config.CourseOptions{}
	if name = strings.TrimSpace(name); name != "" && name != fullName {
		opt.OverwriteName = name
	}
	if !structure {
		flat := false
		opt.CreateDirStructure = &flat
	}

	key := strconv.FormatInt(id, 10)
	if opt == (config.CourseOptions{}) {
		delete(cfg.CourseOptions, key)
		return nil
	}
	if cfg.CourseOptions == nil {
		cfg.CourseOptions = make(map[string]config.CourseOptions)
	}
	cfg.CourseOptions[key] = opt
	return nil
}

// MailSettings edits the mail notifier configuration.
func MailSettings(cfg *config.Config) error {
	enabled := cfg.Mail != nil
	confirm := &survey.Confirm{Message: "Send change reports by mail?", Default: enabled}
	if err := survey.AskOne(confirm, &enabled); err != nil {
		return err
	}
	if !enabled {
		cfg.Mail = nil
		return nil
	}

	mail := config.MailConfig{}
	if cfg.Mail != nil {
		mail = *cfg.Mail
	}

	if err := survey.AskOne(&survey.Input{Message: "SMTP host:", Default: mail.Host},
		&mail.Host, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	portStr := strconv.Itoa(defaultInt(mail.Port, 587))
	if err := survey.AskOne(&survey.Input{Message: "SMTP port:", Default: portStr},
		&portStr, survey.WithValidator(portValidator)); err != nil {
		return err
	}
	mail.Port, _ = strconv.Atoi(strings.TrimSpace(portStr))

	if err := survey.AskOne(&survey.Input{Message: "SMTP username (empty for none):", Default: mail.Username},
		&mail.Username); err != nil {
		return err
	}
	if mail.Username != "" {
		if err := survey.AskOne(&survey.Password{Message: "SMTP password:"},
			&mail.Password, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
	}

	if err := survey.AskOne(&survey.Input{Message: "From address:", Default: mail.From},
		&mail.From, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	toStr := strings.Join(mail.To, ", ")
	if err := survey.AskOne(&survey.Input{Message: "Recipients (comma separated):", Default: toStr},
		&toStr, survey.WithValidator(survey.Required)); err != nil {
		return err
	}
	mail.To = splitAddressList(toStr)

	cfg.Mail = &mail
	return nil
}

func portValidator(val interface{}) error {
	str, ok := val.(string)
	if !ok {
		return errors.New("invalid input")
	}
	num, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		return errors.New("must be a number")
	}
	if num < 1 || num > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}

func courseLabel(id int64, fullName string) string {
	return fmt.Sprintf("%d: %s", id, fullName)
}

func parseCourseID(label string) (int64, bool) {
	idStr, _, ok := strings.Cut(label, ":")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func defaultString(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func defaultInt(n, fallback int) int {
	if n != 0 {
		return n
	}
	return fallback
}

// splitAddressList parses "a@x, b@y" into recipients.
func splitAddressList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
