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

package downscope

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"github.com/external-secrets/gauth/auth"
)

// celEnv is shared across compilations; resource.* and request.* are the
// variables IAM's own availability condition grammar exposes.
var celEnv = mustNewCELEnv()

func mustNewCELEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("resource", types.NewMapType(types.StringType, types.DynType)),
		cel.Variable("request", types.NewMapType(types.StringType, types.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("downscope: failed to build CEL environment: %v", err))
	}
	return env
}

// CompileCondition parses and type-checks cond.Expression once (spec.md
// §4.8 step 1: "the CEL expression is parsed once and embedded as an AST
// proto"), returning the serialized checked expression to embed in the
// client-side boundary record.
func CompileCondition(cond *AvailabilityCondition) (*exprpb.CheckedExpr, error) {
	if cond == nil || cond.Expression == "" {
		return nil, nil
	}
	ast, issues := celEnv.Compile(cond.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, &auth.ConfigError{Message: "invalid availability condition expression", Cause: issues.Err()}
	}
	checked, err := cel.AstToCheckedExpr(ast)
	if err != nil {
		return nil, &auth.ConfigError{Message: "failed to serialize compiled availability condition", Cause: err}
	}
	return checked, nil
}
