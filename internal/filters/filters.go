// Пакет filters — предикат допуска FileRecord по пользовательским
// фильтрам. Используется сканером при обходе и Query API при
// пост-фильтрации каталога. Фильтры вычисляются над FileRecord,
// а не над сырыми сообщениями.
package filters

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quangminh1212/TeleDrive-sub002/internal/domain/model"
)

// Filters — скомпилированный набор фильтров.
// Admit — конъюнкция всех ограничений.
type Filters struct {
	set       model.FilterSet
	types     map[model.FileType]bool
	extAllow  map[string]bool
	extDeny   map[string]bool
	nameAllow []*regexp.Regexp
	nameDeny  []*regexp.Regexp
}

// Compile проверяет и компилирует набор фильтров.
// Возвращает ошибку при некорректных регулярных выражениях
// или отрицательных границах размера.
func Compile(set model.FilterSet) (*Filters, error) {
	if set.SizeMin < 0 {
		return nil, fmt.Errorf("size_min=%d: размер не может быть отрицательным", set.SizeMin)
	}
	if set.SizeMax < 0 {
		return nil, fmt.Errorf("size_max=%d: размер не может быть отрицательным", set.SizeMax)
	}
	if set.SizeMax > 0 && set.SizeMin > set.SizeMax {
		return nil, fmt.Errorf("size_min=%d больше size_max=%d", set.SizeMin, set.SizeMax)
	}

	f := &Filters{set: set}

	if len(set.FileTypes) > 0 {
		f.types = make(map[model.FileType]bool, len(set.FileTypes))
		for _, t := range set.FileTypes {
			f.types[t] = true
		}
	}
	f.extAllow = normalizeExts(set.ExtAllow)
	f.extDeny = normalizeExts(set.ExtDeny)

	var err error
	if f.nameAllow, err = compilePatterns(set.NameAllow); err != nil {
		return nil, fmt.Errorf("name_allow_patterns: %w", err)
	}
	if f.nameDeny, err = compilePatterns(set.NameDeny); err != nil {
		return nil, fmt.Errorf("name_deny_patterns: %w", err)
	}

	return f, nil
}

// Set возвращает исходный снимок фильтров (для scan_info.filters_used).
func (f *Filters) Set() model.FilterSet { return f.set }

// Admit возвращает true, если запись проходит все фильтры.
func (f *Filters) Admit(rec *model.FileRecord) bool {
	if f.types != nil && !f.types[rec.File.Type] {
		return false
	}

	size := rec.File.SizeBytes
	if size < f.set.SizeMin {
		return false
	}
	if f.set.SizeMax > 0 && size > f.set.SizeMax {
		return false
	}

	ext := strings.ToLower(strings.TrimPrefix(rec.File.Extension, "."))
	if len(f.extAllow) > 0 && !f.extAllow[ext] {
		return false
	}
	if f.extDeny[ext] {
		return false
	}

	date := rec.Message.DateUTC
	if f.set.DateFrom != nil && date.Before(*f.set.DateFrom) {
		return false
	}
	if f.set.DateTo != nil && date.After(*f.set.DateTo) {
		return false
	}

	name := rec.File.Name
	if len(f.nameAllow) > 0 && !matchAny(f.nameAllow, name) {
		return false
	}
	if matchAny(f.nameDeny, name) {
		return false
	}

	return true
}

func normalizeExts(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		out[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return out
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("шаблон %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
