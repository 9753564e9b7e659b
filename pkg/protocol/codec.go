package protocol

import (
	"reflect"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encode serializes m into an envelope holding exactly one variant field.
func Encode(m Message) ([]byte, error) {
	if m == nil || reflect.ValueOf(m).IsNil() {
		return nil, &EncodeError{Err: ErrNilMessage}
	}
	kind := m.Kind()
	num := protowire.Number(kind)

	var body []byte
	switch v := m.(type) {
	case *GetName, *GetVersion, *GetDescription, *GetSupportedFormats:
		return appendBool(nil, num, true), nil
	case *Decorate:
		body = appendEntry(nil, &v.Entry)
	case *BatchDecorate:
		for i := range v.Entries {
			body = appendMessage(body, 1, appendEntry(nil, &v.Entries[i]))
		}
		if v.Format != "" {
			body = appendString(body, 2, v.Format)
		}
	case *FormatField:
		body = appendMessage(body, 1, appendEntry(nil, &v.Entry))
		if v.Format != "" {
			body = appendString(body, 2, v.Format)
		}
	case *Config:
		body = appendConfigPayload(nil, &v.Payload)
	case *PerformAction:
		if v.Action != "" {
			body = appendString(body, 1, v.Action)
		}
		for _, arg := range v.Args {
			body = appendString(body, 2, arg)
		}
	case *NameResponse:
		body = appendOptionalString(nil, 1, v.Name)
	case *VersionResponse:
		body = appendOptionalString(nil, 1, v.Version)
	case *DescriptionResponse:
		body = appendOptionalString(nil, 1, v.Description)
	case *FormatsResponse:
		for _, f := range v.Formats {
			body = appendString(body, 1, f)
		}
		for _, c := range v.Capabilities {
			body = appendString(body, 2, c)
		}
	case *DecoratedResponse:
		body = appendEntry(nil, &v.Entry)
	case *BatchDecoratedResponse:
		for i := range v.Entries {
			body = appendMessage(body, 1, appendEntry(nil, &v.Entries[i]))
		}
	case *FieldResponse:
		if v.Field != nil {
			body = appendString(body, 1, *v.Field)
		}
	case *ConfigResponse:
		if v.Success {
			body = appendBool(body, 1, true)
		}
		body = appendOptionalString(body, 2, v.Error)
		for _, dep := range v.MissingDependencies {
			body = appendString(body, 3, dep)
		}
	case *ActionResponse:
		if v.Success {
			body = appendBool(body, 1, true)
		}
		body = appendOptionalString(body, 2, v.Error)
	case *ErrorResponse:
		body = appendOptionalString(nil, 1, v.Message)
		for _, dep := range v.MissingDependencies {
			body = appendString(body, 2, dep)
		}
	default:
		return nil, &EncodeError{Kind: kind, Err: ErrUnknownVariant}
	}

	out := make([]byte, 0, len(body)+protowire.SizeTag(num)+protowire.SizeVarint(uint64(len(body))))
	return appendMessage(out, num, body), nil
}

// Decode parses an envelope. Fields that are not variants of this schema revision
// are skipped; an envelope with no known variant yields ErrUnknownVariant. When
// several variant fields are present the last one wins, as with a protobuf oneof.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, &DecodeError{Err: ErrEmptyMessage}
	}

	var msg Message
	err := walk(b, func(f field) error {
		kind := Kind(f.num)
		if !kind.Known() {
			return nil
		}
		m, err := decodeVariant(kind, f)
		if err != nil {
			return &DecodeError{Kind: kind, Err: err}
		}
		msg = m
		return nil
	})
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			return nil, de
		}
		return nil, &DecodeError{Err: err}
	}
	if msg == nil {
		return nil, &DecodeError{Err: ErrUnknownVariant}
	}
	return msg, nil
}

func decodeVariant(kind Kind, f field) (Message, error) {
	switch kind {
	case KindGetName, KindGetVersion, KindGetDescription, KindGetSupportedFormats:
		// The value carries no information; any scalar or empty payload is accepted.
		switch kind {
		case KindGetName:
			return &GetName{}, nil
		case KindGetVersion:
			return &GetVersion{}, nil
		case KindGetDescription:
			return &GetDescription{}, nil
		default:
			return &GetSupportedFormats{}, nil
		}
	}

	body, err := f.asBytes()
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindDecorate:
		e, err := decodeEntry(body)
		return &Decorate{Entry: e}, err
	case KindBatchDecorate:
		m := &BatchDecorate{}
		return m, walk(body, func(f field) error {
			switch f.num {
			case 1:
				e, err := decodeEntryField(f)
				m.Entries = append(m.Entries, e)
				return err
			case 2:
				s, err := f.asString()
				m.Format = s
				return err
			}
			return nil
		})
	case KindFormatField:
		m := &FormatField{}
		return m, walk(body, func(f field) error {
			switch f.num {
			case 1:
				e, err := decodeEntryField(f)
				m.Entry = e
				return err
			case 2:
				s, err := f.asString()
				m.Format = s
				return err
			}
			return nil
		})
	case KindConfig:
		p, err := decodeConfigPayload(body)
		return &Config{Payload: p}, err
	case KindPerformAction:
		m := &PerformAction{}
		return m, walk(body, func(f field) error {
			switch f.num {
			case 1:
				s, err := f.asString()
				m.Action = s
				return err
			case 2:
				s, err := f.asString()
				m.Args = append(m.Args, s)
				return err
			}
			return nil
		})
	case KindNameResponse:
		s, err := decodeSingleString(body)
		return &NameResponse{Name: s}, err
	case KindVersionResponse:
		s, err := decodeSingleString(body)
		return &VersionResponse{Version: s}, err
	case KindDescriptionResponse:
		s, err := decodeSingleString(body)
		return &DescriptionResponse{Description: s}, err
	case KindFormatsResponse:
		m := &FormatsResponse{}
		return m, walk(body, func(f field) error {
			switch f.num {
			case 1:
				s, err := f.asString()
				m.Formats = append(m.Formats, s)
				return err
			case 2:
				s, err := f.asString()
				m.Capabilities = append(m.Capabilities, s)
				return err
			}
			return nil
		})
	case KindDecoratedResponse:
		e, err := decodeEntry(body)
		return &DecoratedResponse{Entry: e}, err
	case KindBatchDecoratedResponse:
		m := &BatchDecoratedResponse{}
		return m, walk(body, func(f field) error {
			if f.num != 1 {
				return nil
			}
			e, err := decodeEntryField(f)
			m.Entries = append(m.Entries, e)
			return err
		})
	case KindFieldResponse:
		m := &FieldResponse{}
		return m, walk(body, func(f field) error {
			if f.num != 1 {
				return nil
			}
			s, err := f.asString()
			m.Field = &s
			return err
		})
	case KindConfigResponse:
		m := &ConfigResponse{}
		return m, walk(body, func(f field) error {
			var err error
			switch f.num {
			case 1:
				m.Success, err = f.asBool()
			case 2:
				m.Error, err = f.asString()
			case 3:
				var s string
				s, err = f.asString()
				m.MissingDependencies = append(m.MissingDependencies, s)
			}
			return err
		})
	case KindActionResponse:
		m := &ActionResponse{}
		return m, walk(body, func(f field) error {
			var err error
			switch f.num {
			case 1:
				m.Success, err = f.asBool()
			case 2:
				m.Error, err = f.asString()
			}
			return err
		})
	case KindErrorResponse:
		m := &ErrorResponse{}
		return m, walk(body, func(f field) error {
			var err error
			switch f.num {
			case 1:
				m.Message, err = f.asString()
			case 2:
				var s string
				s, err = f.asString()
				m.MissingDependencies = append(m.MissingDependencies, s)
			}
			return err
		})
	}
	return nil, ErrUnknownVariant
}

func appendOptionalString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	return appendString(b, num, s)
}

func decodeSingleString(b []byte) (string, error) {
	var out string
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		var err error
		out, err = f.asString()
		return err
	})
	return out, err
}

// Entry: 1 path, 2 metadata, 3 custom_fields, 4 field_types.
func appendEntry(b []byte, e *Entry) []byte {
	b = appendOptionalString(b, 1, e.Path)
	if e.Metadata != nil {
		b = appendMessage(b, 2, appendMetadata(nil, e.Metadata))
	}
	b = appendStringMap(b, 3, e.CustomFields)
	for _, k := range sortedKeys(e.FieldTypes) {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendMessage(entry, 2, appendFieldType(nil, e.FieldTypes[k]))
		b = appendMessage(b, 4, entry)
	}
	return b
}

func decodeEntryField(f field) (Entry, error) {
	body, err := f.asBytes()
	if err != nil {
		return Entry{}, err
	}
	return decodeEntry(body)
}

func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			s, err := f.asString()
			e.Path = s
			return err
		case 2:
			body, err := f.asBytes()
			if err != nil {
				return err
			}
			md, err := decodeMetadata(body)
			if err != nil {
				return err
			}
			e.Metadata = &md
		case 3:
			body, err := f.asBytes()
			if err != nil {
				return err
			}
			if e.CustomFields == nil {
				e.CustomFields = make(map[string]string)
			}
			return decodeStringMapEntry(body, e.CustomFields)
		case 4:
			body, err := f.asBytes()
			if err != nil {
				return err
			}
			if e.FieldTypes == nil {
				e.FieldTypes = make(map[string]FieldType)
			}
			return decodeFieldTypeEntry(body, e.FieldTypes)
		}
		return nil
	})
	return e, err
}

// FieldType: 1 kind, 2 format.
func appendFieldType(b []byte, ft FieldType) []byte {
	if ft.Kind != FieldString {
		b = appendVarint(b, 1, uint64(ft.Kind))
	}
	return appendOptionalString(b, 2, ft.Format)
}

func decodeFieldTypeEntry(b []byte, into map[string]FieldType) error {
	var key string
	var ft FieldType
	err := walk(b, func(f field) error {
		switch f.num {
		case 1:
			s, err := f.asString()
			key = s
			return err
		case 2:
			body, err := f.asBytes()
			if err != nil {
				return err
			}
			return walk(body, func(f field) error {
				var err error
				switch f.num {
				case 1:
					var k uint32
					k, err = f.asUint32()
					ft.Kind = FieldKind(k)
				case 2:
					ft.Format, err = f.asString()
				}
				return err
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	into[key] = ft
	return nil
}

// EntryMetadata: fields 1-10 in declaration order.
func appendMetadata(b []byte, md *EntryMetadata) []byte {
	scalars := []struct {
		num protowire.Number
		v   uint64
	}{
		{1, md.Size},
		{2, md.Modified},
		{3, md.Accessed},
		{4, md.Created},
		{5, protowire.EncodeBool(md.IsDir)},
		{6, protowire.EncodeBool(md.IsFile)},
		{7, protowire.EncodeBool(md.IsSymlink)},
		{8, uint64(md.Permissions)},
		{9, uint64(md.UID)},
		{10, uint64(md.GID)},
	}
	for _, s := range scalars {
		if s.v != 0 {
			b = appendVarint(b, s.num, s.v)
		}
	}
	return b
}

func decodeMetadata(b []byte) (EntryMetadata, error) {
	var md EntryMetadata
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			md.Size, err = f.asUint64()
		case 2:
			md.Modified, err = f.asUint64()
		case 3:
			md.Accessed, err = f.asUint64()
		case 4:
			md.Created, err = f.asUint64()
		case 5:
			md.IsDir, err = f.asBool()
		case 6:
			md.IsFile, err = f.asBool()
		case 7:
			md.IsSymlink, err = f.asBool()
		case 8:
			md.Permissions, err = f.asUint32()
		case 9:
			md.UID, err = f.asUint32()
		case 10:
			md.GID, err = f.asUint32()
		}
		return err
	})
	return md, err
}

// ConfigPayload: 1 theme, 2 default_format, 3 show_icons, 4 shortcuts, 5 values.
func appendConfigPayload(b []byte, p *ConfigPayload) []byte {
	b = appendOptionalString(b, 1, p.Theme)
	b = appendOptionalString(b, 2, p.DefaultFormat)
	if p.ShowIcons {
		b = appendBool(b, 3, true)
	}
	b = appendStringMap(b, 4, p.Shortcuts)
	return appendStringMap(b, 5, p.Values)
}

func decodeConfigPayload(b []byte) (ConfigPayload, error) {
	var p ConfigPayload
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			p.Theme, err = f.asString()
		case 2:
			p.DefaultFormat, err = f.asString()
		case 3:
			p.ShowIcons, err = f.asBool()
		case 4:
			var body []byte
			if body, err = f.asBytes(); err != nil {
				return err
			}
			if p.Shortcuts == nil {
				p.Shortcuts = make(map[string]string)
			}
			err = decodeStringMapEntry(body, p.Shortcuts)
		case 5:
			var body []byte
			if body, err = f.asBytes(); err != nil {
				return err
			}
			if p.Values == nil {
				p.Values = make(map[string]string)
			}
			err = decodeStringMapEntry(body, p.Values)
		}
		return err
	})
	return p, err
}
