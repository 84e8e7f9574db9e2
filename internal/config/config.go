// Copyright 2015-2023 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package config loads the optional YAML file named by -config,
// supplementing cmd/keyd's flag set: read the whole file and unmarshal
// it with gopkg.in/yaml.v3; no further validation is done.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the optional on-disk config. Port, Dir, DBFilename, ReplicaOf
// and RequireAuth mirror cmd/keyd flags of the same concern, which
// overwrite them when given. LogLevel is parsed but cmd/keyd does not
// apply it; Params has no flag counterpart.
type File struct {
	Port        int               `yaml:"port"`
	Dir         string            `yaml:"dir"`
	DBFilename  string            `yaml:"dbfilename"`
	ReplicaOf   string            `yaml:"replicaof"`
	LogLevel    string            `yaml:"loglevel"`
	RequireAuth bool              `yaml:"requireauth"`
	Params      map[string]string `yaml:"params"` // extra CONFIG GET-visible key/value pairs
}

// Load reads and parses path; a missing file is not an error (-config is
// optional), every other os.ReadFile/yaml error is returned wrapped with
// the path.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &f, nil
}

// ToParams flattens f into the CONFIG GET-visible key/value map, the
// Context.Config field every cmdConfig call answers from.
func (f *File) ToParams() map[string]string {
	out := map[string]string{
		"dir":        f.Dir,
		"dbfilename": f.DBFilename,
		"maxmemory":  "",
		"appendonly": "",
		"save":       "",
	}
	for k, v := range f.Params {
		out[k] = v
	}
	return out
}
