package bencode

// Lookup helpers pair a dictionary lookup with a type check and report
// failures as *ConvertError so message parsers can surface which key was
// wrong.

func lookup(d Dict, key string) (Value, error) {
	v, ok := d.Lookup([]byte(key))
	if !ok {
		return nil, &ConvertError{Err: ErrMissingKey, Key: key}
	}

	return v, nil
}

func wrongType(key string, want Kind) error {
	return &ConvertError{Err: ErrWrongType, Key: key, Want: want}
}

// LookupInt returns the integer stored under key.
func LookupInt(d Dict, key string) (int64, error) {
	v, err := lookup(d, key)
	if err != nil {
		return 0, err
	}

	n, ok := v.Int()
	if !ok {
		return 0, wrongType(key, KindInt)
	}

	return n, nil
}

// LookupBytes returns the byte string stored under key.
func LookupBytes(d Dict, key string) ([]byte, error) {
	v, err := lookup(d, key)
	if err != nil {
		return nil, err
	}

	b, ok := v.Bytes()
	if !ok {
		return nil, wrongType(key, KindBytes)
	}

	return b, nil
}

// LookupStr returns the UTF-8 string stored under key.
func LookupStr(d Dict, key string) (string, error) {
	v, err := lookup(d, key)
	if err != nil {
		return "", err
	}

	s, ok := v.Str()
	if !ok {
		return "", wrongType(key, KindBytes)
	}

	return s, nil
}

// LookupList returns the list stored under key.
func LookupList(d Dict, key string) (List, error) {
	v, err := lookup(d, key)
	if err != nil {
		return nil, err
	}

	l, ok := v.List()
	if !ok {
		return nil, wrongType(key, KindList)
	}

	return l, nil
}

// LookupDict returns the dictionary stored under key.
func LookupDict(d Dict, key string) (Dict, error) {
	v, err := lookup(d, key)
	if err != nil {
		return nil, err
	}

	sub, ok := v.Dict()
	if !ok {
		return nil, wrongType(key, KindDict)
	}

	return sub, nil
}
