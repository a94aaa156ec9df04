/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

// Restart policy applied to every generated unit.
const (
	UnitRestartPolicy  = "always"
	UnitRestartSeconds = 5
	UnitWantedBy       = "multi-user.target"
	UnitAfter          = "network.target multi-user.target"
)

// ServiceUnitDescriptor carries the values substituted into the unit template.
type ServiceUnitDescriptor struct {
	Name             string
	Description      string
	User             string
	WorkingDirectory string
	ExecStart        string
}

// ServiceDecisions gates each service-manager side effect independently.
type ServiceDecisions struct {
	Write  bool
	Enable bool
	Start  bool
}
