package analyzer

import "github.com/a3tai/subsidy-form-filler/internal/pdf/template"

// typeForKind picks the mapped field type that writes into an interactive
// field of the given kind. ok is false for fields that cannot be filled.
func typeForKind(f FieldInfo) (template.FieldType, bool) {
	switch f.Kind {
	case FieldKindText:
		if f.Multiline {
			return template.FieldTypeMultiline, true
		}
		return template.FieldTypeText, true
	case FieldKindCheckbox:
		return template.FieldTypeCheckbox, true
	case FieldKindRadio, FieldKindComboBox, FieldKindListBox:
		return template.FieldTypeSelect, true
	case FieldKindUnknown:
		return template.FieldTypeText, true
	}
	return "", false
}

// SuggestMapping drafts a field mapping from an analysis: every fillable,
// writable interactive field is mapped by name under its own name, and
// every anchor is mapped by coordinates just right of its label. The
// draft is meant to be edited into a real mapping.
func SuggestMapping(analysis *Analysis, anchors map[string]Anchor) template.FieldMapping {
	mapping := template.FieldMapping{}
	if analysis != nil {
		for _, name := range analysis.FieldNames {
			f := analysis.Fields[name]
			ft, ok := typeForKind(f)
			if !ok || f.ReadOnly {
				continue
			}
			mapping[name] = template.FieldConfig{Type: ft, Target: template.InteractiveTarget{FieldName: name}}
		}
	}
	for label, a := range anchors {
		if _, taken := mapping[label]; taken {
			continue
		}
		mapping[label] = template.FieldConfig{
			Type:   template.FieldTypeText,
			Target: template.CoordinateTarget{Coordinates: a.Suggest()},
		}
	}
	return mapping
}
