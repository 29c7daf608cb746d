// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package envvar resolves single environment variables into typed values.
//
// A variable declared with a default degrades to that default, with a
// warning, when it is unset or cannot be parsed. A variable declared without
// a default is required: the same conditions produce a *ConfigError that the
// caller is expected to treat as fatal.
//
// Lookups go through a Source so that a dotenv file can be layered under the
// process environment (see NewViperSource) and so tests can supply a
// MapSource.
package envvar
