// Copyright 2024 Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

const stateSample = `
# The declarative switch configuration. If not set, switch.yml in the general
# config directory is used. (default "")
switch_config = "/etc/switchd/switch.yml"

# The database the committed state is persisted to for warm boots.
# (default "/var/lib/switchd/warmboot.db")
warm_boot_db = "/var/lib/switchd/warmboot.db"

# Discard the persisted state on startup. (default false)
cold_boot = false

# The interval in which the committed state is persisted if it changed.
# (default 10s)
persist_interval = "10s"

# The number of snapshots kept in the database. (default 5)
keep_snapshots = 5
`

const hardwareSample = `
# The number of entries per hardware table. Tables that are not listed are
# unbounded.
[hardware.capacities]
routes = 16384
acl_entries = 2048
mac_table = 32768
`

const qsfpSample = `
# The interval of the transceiver state machine refresh. (default 10s)
refresh_interval = "10s"

# The cooldown after the ports of a transceiver went down before it is
# remediated the first time. (default 120s)
initial_remediate_interval = "2m"

# The cooldown between two remediations. (default 360s)
remediate_interval = "6m"

# The minimum time between two customizations of a module. (default 30s)
customize_interval = "30s"

# The minimum time between two refreshes of the module data. (default 10s)
data_refresh_interval = "10s"

# The execution mode of the transceiver I/O (serialized|inline).
# (default serialized)
executor = "serialized"

# The number of transceivers refreshed concurrently. (default 8)
parallelism = 8

# Replace the I2C buses with simulated transceivers. (default false)
simulated = false

# The transceiver slots. Simulated slots can set media (optical|copper) and
# absent.
[[qsfp.transceivers]]
id = 1
bus = 10

[[qsfp.transceivers]]
id = 2
bus = 11
`
