package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/lodgekit/extensions/internal/capability"
	exterrors "github.com/lodgekit/extensions/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	slugPattern   = regexp.MustCompile(`^[a-z0-9]+([-a-z0-9/]+)?$`)
	semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("ext_slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// CapabilityLookup answers whether a capability name is declared. Satisfied
// by capability.Registry.
type CapabilityLookup interface {
	Has(name string) bool
}

// Validator parses raw descriptors into normalized manifests. It reports
// every violation it finds rather than stopping at the first, so an
// operator fixing a manifest sees the complete picture at once.
type Validator struct {
	caps CapabilityLookup
}

// NewValidator builds a Validator bound to a capability registry.
func NewValidator(caps CapabilityLookup) *Validator {
	return &Validator{caps: caps}
}

// Validate parses and normalizes one raw manifest. On failure the returned
// error is a *errors.ManifestError enumerating all violations. Validating
// the JSON encoding of a returned Manifest yields an identical Manifest.
func (v *Validator) Validate(raw []byte, sourcePath string) (*Manifest, error) {
	verr := exterrors.NewManifestError(sourcePath, nil)

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		verr.Add("manifest", "malformed JSON: "+err.Error())
		return nil, verr
	}

	v.normalize(&m)
	v.checkFields(&m, verr)
	v.checkPermissions(&m, verr)
	v.checkRoutes(&m, verr)
	v.checkPanels(&m, verr)

	if verr.HasViolations() {
		return nil, verr
	}
	return &m, nil
}

// normalize applies defaults before rule checks so checks see final values.
func (v *Validator) normalize(m *Manifest) {
	if m.EntryPoint == "" {
		m.EntryPoint = DefaultEntryPoint
	}
	if m.Permissions == nil {
		m.Permissions = []string{}
	}
	if m.Signature.Status == "" {
		m.Signature.Status = SignatureStatusUnknown
	}

	for i := range m.Hooks.Routes {
		route := &m.Hooks.Routes[i]
		route.Method = strings.ToUpper(route.Method)
		if route.Metadata == nil {
			route.Metadata = map[string]any{}
		}
	}

	for i := range m.Hooks.UIPanels {
		panel := &m.Hooks.UIPanels[i]
		// No implicit exposure: absent visibility means visible to nobody.
		if panel.VisibleTo == nil {
			panel.VisibleTo = []string{}
		}
	}
}

func (v *Validator) checkFields(m *Manifest, verr *exterrors.ManifestError) {
	err := validatorInstance().Struct(m)
	if err == nil {
		return
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		verr.Add("manifest", err.Error())
		return
	}

	for _, fe := range fieldErrs {
		verr.Add(jsonishFieldName(fe), messageForTag(fe))
	}
}

func (v *Validator) checkPermissions(m *Manifest, verr *exterrors.ManifestError) {
	// Bulk check: every unknown permission is reported, not just the first.
	for i, name := range m.Permissions {
		if name == "" {
			verr.Add(fmt.Sprintf("permissions[%d]", i), "permission name is empty")
			continue
		}
		if v.caps == nil || !v.caps.Has(name) {
			verr.Add(fmt.Sprintf("permissions[%d]", i), fmt.Sprintf("unknown capability %q", name))
		}
	}
}

func (v *Validator) checkRoutes(m *Manifest, verr *exterrors.ManifestError) {
	for i, route := range m.Hooks.Routes {
		field := func(name string) string {
			return fmt.Sprintf("hooks.routes[%d].%s", i, name)
		}

		if _, ok := Surfaces[route.Surface]; !ok {
			verr.Add(field("surface"), fmt.Sprintf("unknown surface %q", route.Surface))
		}
		if _, ok := Methods[route.Method]; !ok {
			verr.Add(field("method"), fmt.Sprintf("unknown method %q", route.Method))
		}
		if route.Path == "" {
			verr.Add(field("path"), "path is required")
		} else if !strings.HasPrefix(route.Path, "/") {
			verr.Add(field("path"), fmt.Sprintf("path %q must start with '/'", route.Path))
		}
		if route.Capability != "" && (v.caps == nil || !v.caps.Has(route.Capability)) {
			verr.Add(field("capability"), fmt.Sprintf("unknown capability %q", route.Capability))
		}
	}
}

func (v *Validator) checkPanels(m *Manifest, verr *exterrors.ManifestError) {
	for i, panel := range m.Hooks.UIPanels {
		field := func(name string) string {
			return fmt.Sprintf("hooks.ui_panels[%d].%s", i, name)
		}

		if panel.PanelKey == "" {
			verr.Add(field("id"), "panel id is required")
		}
		if panel.Title == "" {
			verr.Add(field("title"), "panel title is required")
		}
		if panel.Component == "" {
			verr.Add(field("component"), "panel component is required")
		} else if _, ok := PanelComponents[panel.Component]; !ok {
			verr.Add(field("component"), fmt.Sprintf("unknown component %q", panel.Component))
		}
		if panel.Component == "form" && panel.SchemaPath == "" {
			verr.Add(field("schema_path"), "form panels require a schema_path")
		}
		for j, role := range panel.VisibleTo {
			if _, ok := capability.KnownRoles[role]; !ok {
				verr.Add(fmt.Sprintf("hooks.ui_panels[%d].visible_to[%d]", i, j),
					fmt.Sprintf("unknown role %q", role))
			}
		}
	}
}

func jsonishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop the struct type name
	}
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, camelToSnake(part))
	}
	return strings.Join(lowered, ".")
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ext_slug":
		return fmt.Sprintf("%q is not a valid slug", fe.Value())
	case "semver":
		return fmt.Sprintf("%q is not a semantic version", fe.Value())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	default:
		return fmt.Sprintf("failed validation for %q", fe.Tag())
	}
}

func camelToSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := rune(name[i-1])
				if prev >= 'a' && prev <= 'z' {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
