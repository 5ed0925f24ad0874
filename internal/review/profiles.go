package review

const generalAnalysisPrompt = `You are an expert code analyst. Perform a comprehensive analysis of the provided code and identify:

1. **Bugs and Logic Errors**: actual bugs, edge cases and logical issues
2. **Performance Issues**: inefficient algorithms, leaks, unnecessary computation
3. **Security Vulnerabilities**: injection, XSS, authentication issues
4. **Code Quality**: poor naming, complex functions, missing error handling
5. **Best Practices**: violations of language conventions and patterns

For each issue give its type, severity (Critical, High, Medium, Low), location,
description, impact and a specific recommendation.

Respond in JSON:
{
  "issues": [
    {
      "type": "Bug|Performance|Security|Quality|Best Practice",
      "severity": "Critical|High|Medium|Low",
      "file": "path of the file",
      "location": "line X or function Y",
      "description": "detailed description",
      "impact": "impact explanation",
      "recommendation": "specific fix suggestion"
    }
  ],
  "overall_assessment": "summary of code quality",
  "improvement_priority": ["top 3 priorities"]
}`

const generalGenerationPrompt = `You are an expert software developer. Based on the provided code analysis, generate improved code that addresses the identified issues.

Fix bugs and logic errors, implement performance optimizations, address security
vulnerabilities and apply the language's best practices.

Respond in JSON:
{
  "improved_code": [{"file": "path", "code": "complete improved file"}],
  "changes": [
    {
      "type": "Bug Fix|Performance|Security|Quality|Best Practice",
      "file": "path",
      "description": "what was changed",
      "line_range": "affected lines",
      "impact": "expected improvement"
    }
  ],
  "issues_addressed": [{"original_issue": "issue from analysis", "solution": "how it was fixed"}],
  "summary": "overall improvements summary"
}`

const generalIntegrationPrompt = `You are an expert code integrator. Integrate the improved code while keeping it consistent with the existing codebase.

Keep code style and formatting consistent, preserve existing architecture patterns and
naming conventions, manage imports and stay compatible with the rest of the codebase.

Respond in JSON:
{
  "integrated_code": [{"file": "path", "code": "final integrated file"}],
  "integration_notes": ["integration decisions made"],
  "style_adjustments": [{"adjustment": "what was adjusted", "reason": "why it was needed"}],
  "compatibility_checks": "confirmation of compatibility",
  "summary": "integration summary"
}`

const generalVerificationPrompt = `You are a senior quality assurance engineer. Perform a final review of the integrated code.

Cover correctness and logic, performance, security, code quality, best practices and
potential regressions or side effects.

Respond in JSON:
{
  "verification_passed": true,
  "overall_quality_score": 8,
  "correctness_check": "pass/fail with details",
  "performance_assessment": "performance analysis",
  "security_review": "security evaluation",
  "warnings": ["warnings or concerns"],
  "recommendations": ["further recommendations"],
  "final_assessment": "overall quality assessment",
  "regression_risks": ["potential regression risks"]
}`

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		ProjectGeneral: {
			Name:        "General Software Development",
			Description: "Balanced analysis for general software projects",
			Analysis: StagePrompt{
				FocusAreas:   []string{"Bugs and Logic Errors", "Performance Issues", "Security Vulnerabilities", "Code Quality", "Best Practices"},
				SystemPrompt: generalAnalysisPrompt,
			},
			Generation: StagePrompt{
				FocusAreas:   []string{"Bug Fixes", "Performance Optimization", "Security Improvements", "Code Quality Enhancement", "Best Practice Implementation"},
				SystemPrompt: generalGenerationPrompt,
			},
			Integration: StagePrompt{
				FocusAreas:   []string{"Code Style Consistency", "Architecture Alignment", "Variable Naming", "Import Management", "Compatibility"},
				SystemPrompt: generalIntegrationPrompt,
			},
			Verification: StagePrompt{
				FocusAreas:   []string{"Code Correctness", "Performance Analysis", "Security Review", "Quality Assessment", "Regression Detection"},
				SystemPrompt: generalVerificationPrompt,
			},
		},
		ProjectWebDevelopment: {
			Name:        "Web Development",
			Description: "Frontend and backend web development focus",
			Analysis: StagePrompt{
				FocusAreas: []string{"XSS and CSRF Vulnerabilities", "API Security", "Performance Bottlenecks", "Accessibility Issues", "SEO Problems", "Browser Compatibility"},
				SystemPrompt: `You are an expert web security and performance analyst. Focus on web-specific issues:
1. **Security**: XSS, CSRF, SQL injection, authentication flaws, session management
2. **Performance**: bundle size, loading times, rendering bottlenecks, caching
3. **Accessibility**: ARIA compliance, keyboard navigation, screen reader support
4. **SEO**: meta tags, semantic markup
5. **Compatibility**: browser support, responsive design

Respond in the same JSON format as a general analysis, with "issues", "overall_assessment" and "improvement_priority".`,
			},
			Generation: StagePrompt{
				SystemPrompt: `You are an expert web developer. Generate improved web code that fixes security vulnerabilities (XSS, CSRF, injection), optimizes loading and rendering, improves accessibility and SEO and keeps browser compatibility.

Respond in JSON with "improved_code", "changes", "issues_addressed" and "summary".`,
			},
		},
		ProjectAIML: {
			Name:        "AI/ML Development",
			Description: "Specialized analysis for machine learning and AI projects",
			Analysis: StagePrompt{
				FocusAreas: []string{"Model Architecture Issues", "Training Stability", "Data Processing Bugs", "Numerical Stability", "Performance Bottlenecks", "Memory Management"},
				SystemPrompt: `You are an expert AI/ML code analyst. Focus on machine learning issues:
1. **Model Architecture**: layer sizes, activations, initialization
2. **Training Stability**: gradients, learning rate, convergence
3. **Data Processing**: tensor shape mismatches, normalization, data leaks
4. **Numerical Stability**: NaN/Inf values, underflow, overflow, precision
5. **Performance**: tensor operations, memory use, GPU utilization

Respond in JSON with "issues", "overall_assessment" and "improvement_priority".`,
			},
			Generation: StagePrompt{
				SystemPrompt: `You are an expert ML engineer. Generate improved ML code that fixes tensor shape issues, handles gradients and numerical stability, improves preprocessing and adds proper evaluation and validation.

Respond in JSON with "improved_code", "changes", "issues_addressed" and "summary".`,
			},
			Integration: StagePrompt{
				SystemPrompt: `You are an expert ML system integrator. Integrate the improvements while keeping tensor operations, hyperparameters, preprocessing pipelines and evaluation metrics consistent and experiments reproducible.

Respond in JSON with "integrated_code", "integration_notes", "style_adjustments", "compatibility_checks" and "summary".`,
			},
			Verification: StagePrompt{
				SystemPrompt: `You are a senior ML quality engineer. Verify model correctness, training stability, data pipeline integrity with no leakage, evaluation methodology, efficiency and reproducibility.

Respond in JSON with "verification_passed", "overall_quality_score", "warnings", "recommendations" and "final_assessment".`,
			},
		},
		ProjectSecurity: {
			Name:        "Security-Focused",
			Description: "Enhanced security analysis and hardening",
			Analysis: StagePrompt{
				FocusAreas: []string{"Injection Vulnerabilities", "Authentication Flaws", "Authorization Issues", "Cryptographic Problems", "Input Validation", "Sensitive Data Exposure"},
				SystemPrompt: `You are a cybersecurity expert. Perform deep security analysis focusing on:
1. **Injection**: SQL, NoSQL, LDAP and OS command injection
2. **Authentication**: weak passwords, session management
3. **Authorization**: access control, privilege escalation
4. **Cryptography**: weak algorithms, key management
5. **Input Validation**: sanitization, encoding, boundary checks
6. **Data Protection**: encryption, PII handling, leaks

Include exploit scenarios and mitigations. Respond in JSON with "issues", "overall_assessment" and "improvement_priority".`,
			},
		},
		ProjectBackendAPI: {
			Name:        "Backend API",
			Description: "Service and API correctness, resilience and contracts",
			Analysis: StagePrompt{FocusAreas: []string{"API Contract Consistency", "Error Handling", "Concurrency", "Data Validation", "Resource Management"}},
		},
		ProjectMobileApp: {
			Name:        "Mobile Application",
			Description: "Mobile performance, lifecycle and platform conventions",
			Analysis: StagePrompt{FocusAreas: []string{"Lifecycle Handling", "Battery and Memory Use", "Offline Behaviour", "Platform Guidelines", "Secure Storage"}},
		},
		ProjectDataScience: {
			Name:        "Data Science",
			Description: "Notebook and analysis code correctness and reproducibility",
			Analysis: StagePrompt{FocusAreas: []string{"Data Leakage", "Statistical Validity", "Reproducibility", "Vectorization", "Data Cleaning"}},
		},
		ProjectGameDevelopment: {
			Name:        "Game Development",
			Description: "Frame budget, game loop and asset handling",
			Analysis: StagePrompt{FocusAreas: []string{"Frame Time", "Game Loop Logic", "Physics Stability", "Asset Management", "Memory Allocation"}},
		},
		ProjectDevOpsInfra: {
			Name:        "DevOps and Infrastructure",
			Description: "Scripts, pipelines and infrastructure code",
			Analysis: StagePrompt{FocusAreas: []string{"Idempotency", "Secret Handling", "Least Privilege", "Failure Recovery", "Portability"}},
		},
		ProjectEmbedded: {
			Name:        "Embedded Systems",
			Description: "Resource-constrained and real-time code",
			Analysis: StagePrompt{FocusAreas: []string{"Memory Safety", "Timing Constraints", "Interrupt Handling", "Power Use", "Hardware Abstraction"}},
		},
	}
}
