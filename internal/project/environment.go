// Copyright 2020 Presidenza del Consiglio dei Ministri
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package project

import "strings"

// Environment identifies the deployment stage the service runs in. Some
// behaviors that permanently alter remote device state are gated on the
// release environment so that developer devices survive testing.
type Environment string

const (
	EnvironmentRelease     Environment = "release"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
)

// Release reports whether this is the production environment.
func (e Environment) Release() bool {
	return strings.EqualFold(string(e), string(EnvironmentRelease))
}
