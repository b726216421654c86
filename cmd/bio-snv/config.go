// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"flag"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// applyConfig overlays the values in the YAML file at path onto every flag
// which was not set explicitly on the command line.  Keys are flag names.
// An empty path is a no-op.
func applyConfig(path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config %s", path)
	}
	return overlayFlags(v, flag.CommandLine)
}

func overlayFlags(v *viper.Viper, fs *flag.FlagSet) error {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})
	for _, key := range v.AllKeys() {
		f := fs.Lookup(key)
		if f == nil {
			return errors.Errorf("config: unknown key %q", key)
		}
		if key == "config" {
			return errors.New("config: nested config files are not supported")
		}
		if explicit[key] {
			log.Debug.Printf("config: -%s set on command line, ignoring config value", key)
			continue
		}
		if err := fs.Set(key, fmt.Sprint(v.Get(key))); err != nil {
			return errors.Wrapf(err, "config: invalid value for %q", key)
		}
	}
	return nil
}
