/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package auth

// ChangeListener is invoked once, synchronously, after every successful
// refresh, in registration order. Panics/errors from a listener must never
// propagate to the refreshing goroutine or affect sibling listeners; the
// Cache recovers and swallows them.
type ChangeListener func(tok *AccessToken)
